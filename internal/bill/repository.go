package bill

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imexpress/backend-billing/internal/manifest"
)

var ErrNotFound = errors.New("bill not found")

const billColumns = `id, customer_name, phone, email, address, item_count,
	grand_total, total_discount, status, submitted_by, created_at, updated_at`

// Repository persists bills and their line items.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanBill(row pgx.Row, b *Bill) error {
	var submittedBy *uuid.UUID
	err := row.Scan(
		&b.ID, &b.CustomerName, &b.Phone, &b.Email, &b.Address, &b.ItemCount,
		&b.GrandTotal, &b.TotalDiscount, &b.Status, &submittedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if submittedBy != nil {
		b.SubmittedBy = *submittedBy
	}
	return nil
}

// Create writes the bill and all its items in one transaction so a partial
// bill is never visible.
func (r *Repository) Create(ctx context.Context, b Bill) (Bill, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Bill{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO bills (customer_name, phone, email, address, item_count,
			grand_total, total_discount, status, submitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+billColumns,
		b.CustomerName, b.Phone, b.Email, b.Address, len(b.Items),
		b.GrandTotal, b.TotalDiscount, b.Status, b.SubmittedBy,
	)
	var created Bill
	if err := scanBill(row, &created); err != nil {
		return Bill{}, fmt.Errorf("insert bill: %w", err)
	}

	for i, item := range b.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO bill_items (bill_id, position, awb, extra, shipper, shipper_address,
				consignee, bin_vat, destination, consignee_address, contact, telephone,
				quantity, weight, volume, description, cod, value, remarks, bag_no,
				client_id, price, discount, total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
				$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
			created.ID, i, item.AWB, item.Extra, item.Shipper, item.ShipperAddress,
			item.Consignee, item.BinVAT, item.Destination, item.ConsigneeAddress, item.Contact, item.Telephone,
			item.Quantity, item.Weight, item.Volume, item.Description, item.COD, item.Value, item.Remarks, item.BagNo,
			item.ClientID, item.Price, item.Discount, item.Total,
		); err != nil {
			return Bill{}, fmt.Errorf("insert bill item %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Bill{}, fmt.Errorf("commit: %w", err)
	}
	created.Items = b.Items
	return created, nil
}

// Get loads a bill with its items in submission order.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Bill, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1`, id)
	var b Bill
	if err := scanBill(row, &b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT awb, extra, shipper, shipper_address, consignee, bin_vat, destination,
			consignee_address, contact, telephone, quantity, weight, volume, description,
			cod, value, remarks, bag_no, client_id, price, discount, total
		FROM bill_items WHERE bill_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item manifest.LineItem
		if err := rows.Scan(
			&item.AWB, &item.Extra, &item.Shipper, &item.ShipperAddress, &item.Consignee,
			&item.BinVAT, &item.Destination, &item.ConsigneeAddress, &item.Contact, &item.Telephone,
			&item.Quantity, &item.Weight, &item.Volume, &item.Description,
			&item.COD, &item.Value, &item.Remarks, &item.BagNo,
			&item.ClientID, &item.Price, &item.Discount, &item.Total,
		); err != nil {
			return nil, err
		}
		b.Items = append(b.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Status      Status
	SubmittedBy uuid.UUID
}

// List returns bill summaries (no items), newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills`
	var conditions []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.SubmittedBy != uuid.Nil {
		args = append(args, f.SubmittedBy)
		conditions = append(conditions, fmt.Sprintf("submitted_by = $%d", len(args)))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bill
	for rows.Next() {
		var b Bill
		if err := scanBill(rows, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateStatus moves a bill out of pending. The WHERE clause re-checks the
// current status so two concurrent decisions cannot both win.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Bill, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bills SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+billColumns, id, from, to)
	var b Bill
	if err := scanBill(row, &b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
