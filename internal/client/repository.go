package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imexpress/backend-billing/internal/rate"
)

var (
	ErrNotFound      = errors.New("client not found")
	ErrAlreadyExists = errors.New("client already exists")
)

const clientColumns = `id, client_id, name, address, phone, email, client_type,
	rate_per_kg, usd_surcharge, base_rate, extra_rate_per_kg, discount_type, discount_value,
	registered_by, created_at, updated_at`

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository provides Postgres-backed client persistence.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanClient(row pgx.Row, c *Client) error {
	var registeredBy *uuid.UUID
	err := row.Scan(
		&c.ID, &c.ClientID, &c.Name, &c.Address, &c.Phone, &c.Email, &c.ClientType,
		&c.Policy.RatePerKg, &c.Policy.USDSurcharge, &c.Policy.BaseRate, &c.Policy.ExtraRatePerKg,
		&c.Policy.DiscountType, &c.Policy.DiscountValue,
		&registeredBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if registeredBy != nil {
		c.RegisteredBy = *registeredBy
	}
	return nil
}

// nullableUUID maps the zero uuid to NULL for optional foreign keys.
func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

// Attempts before Create gives up re-minting a code that keeps colliding
// with concurrent registrations.
const mintAttempts = 3

// errCodeTaken marks a client_id unique violation: another transaction
// committed the same freshly minted code first. Create retries these,
// unlike identity duplicates.
var errCodeTaken = errors.New("client code already taken")

// Create inserts a new client inside one transaction. The next sequential
// client code is read from the highest committed code; when two
// registrations of different identities race to the same number, the unique
// index on client_id rejects the loser and the mint is retried on a fresh
// snapshot. A violation of the lowercased (name, address) index instead
// means a true duplicate and surfaces as ErrAlreadyExists.
func (r *Repository) Create(ctx context.Context, c Client) (Client, error) {
	return mintWithRetry(func() (Client, error) {
		return r.create(ctx, c)
	})
}

func mintWithRetry(create func() (Client, error)) (Client, error) {
	var lastErr error
	for attempt := 0; attempt < mintAttempts; attempt++ {
		created, err := create()
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, errCodeTaken) {
			return Client{}, err
		}
		lastErr = err
	}
	return Client{}, fmt.Errorf("mint client code after %d attempts: %w", mintAttempts, lastErr)
}

func (r *Repository) create(ctx context.Context, c Client) (Client, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Client{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	seq, err := nextClientSeq(ctx, tx)
	if err != nil {
		return Client{}, err
	}
	c.ClientID = FormatClientID(seq)

	row := tx.QueryRow(ctx, `
		INSERT INTO clients (client_id, name, address, phone, email, client_type,
			rate_per_kg, usd_surcharge, base_rate, extra_rate_per_kg, discount_type, discount_value,
			registered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+clientColumns,
		c.ClientID, c.Name, c.Address, c.Phone, c.Email, c.ClientType,
		c.Policy.RatePerKg, c.Policy.USDSurcharge, c.Policy.BaseRate, c.Policy.ExtraRatePerKg,
		c.Policy.DiscountType, c.Policy.DiscountValue,
		nullableUUID(c.RegisteredBy),
	)
	var created Client
	if err := scanClient(row, &created); err != nil {
		return Client{}, classifyCreateError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Client{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// classifyCreateError tells the two unique indexes on clients apart: the
// identity index means the caller registered a duplicate, the client_id
// index means another transaction committed the same code between our read
// of the maximum and our insert.
func classifyCreateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "clients_client_id_key" {
			return errCodeTaken
		}
		return ErrAlreadyExists
	}
	return fmt.Errorf("insert client: %w", err)
}

// nextClientSeq reads the highest IM-numbered code. The row lock narrows the
// race window but cannot close it: a transaction that blocked on it resumes
// with a snapshot that predates the winner's insert, and an empty table
// leaves nothing to lock at all. The unique index on client_id is the real
// guard; Create retries when it trips.
func nextClientSeq(ctx context.Context, tx dbtx) (int, error) {
	var last string
	err := tx.QueryRow(ctx, `
		SELECT client_id FROM clients
		WHERE client_id ~ '^IM[0-9]+$'
		ORDER BY (substring(client_id FROM 3))::int DESC
		LIMIT 1
		FOR UPDATE`).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 1, nil
		}
		return 0, fmt.Errorf("read highest client code: %w", err)
	}
	seq, ok := ParseClientIDSeq(last)
	if !ok {
		return 0, fmt.Errorf("malformed client code %q", last)
	}
	return seq + 1, nil
}

// FindByIdentity matches case-insensitively on trimmed (name, address).
func (r *Repository) FindByIdentity(ctx context.Context, name, address string) (*Client, error) {
	normName, normAddr := NormalizeIdentity(name, address)
	row := r.pool.QueryRow(ctx, `
		SELECT `+clientColumns+` FROM clients
		WHERE lower(trim(name)) = $1 AND lower(trim(address)) = $2`,
		normName, normAddr)
	var c Client
	if err := scanClient(row, &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// PolicyByIdentity implements rate.ClientPolicies.
func (r *Repository) PolicyByIdentity(ctx context.Context, name, address string) (rate.Policy, string, bool, error) {
	c, err := r.FindByIdentity(ctx, name, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rate.Policy{}, "", false, nil
		}
		return rate.Policy{}, "", false, err
	}
	return c.Policy, c.ClientID, true, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	var c Client
	if err := scanClient(row, &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rules, err := r.listRateRules(ctx, id)
	if err != nil {
		return nil, err
	}
	c.RateRules = rules
	return &c, nil
}

// List returns all clients, most recently registered first.
func (r *Repository) List(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := scanClient(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update rewrites profile and policy fields. The client code is immutable.
func (r *Repository) Update(ctx context.Context, c Client) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE clients SET
			name = $2, address = $3, phone = $4, email = $5, client_type = $6,
			rate_per_kg = $7, usd_surcharge = $8, base_rate = $9, extra_rate_per_kg = $10,
			discount_type = $11, discount_value = $12,
			updated_at = now()
		WHERE id = $1
		RETURNING `+clientColumns,
		c.ID, c.Name, c.Address, c.Phone, c.Email, c.ClientType,
		c.Policy.RatePerKg, c.Policy.USDSurcharge, c.Policy.BaseRate, c.Policy.ExtraRatePerKg,
		c.Policy.DiscountType, c.Policy.DiscountValue,
	)
	var updated Client
	if err := scanClient(row, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return &updated, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceRateRules swaps a client's ad-hoc rate rules atomically.
func (r *Repository) ReplaceRateRules(ctx context.Context, clientID uuid.UUID, rules []RateRule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM client_rate_rules WHERE client_id = $1`, clientID); err != nil {
		return err
	}
	for _, rule := range rules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO client_rate_rules (client_id, pattern, weight, rate)
			VALUES ($1, $2, $3, $4)`,
			clientID, rule.Pattern, rule.Weight, rule.Rate,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) listRateRules(ctx context.Context, clientID uuid.UUID) ([]RateRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, pattern, weight, rate FROM client_rate_rules
		WHERE client_id = $1 ORDER BY created_at`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateRule
	for rows.Next() {
		var rule RateRule
		if err := rows.Scan(&rule.ID, &rule.Pattern, &rule.Weight, &rule.Rate); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// AssignClientIDs resequences client codes in registration-date order.
// Idempotent: running it twice yields the same assignment. Codes are first
// parked in a scratch namespace so the unique constraint never trips on
// intermediate states.
func (r *Repository) AssignClientIDs(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id FROM clients ORDER BY created_at ASC, id ASC FOR UPDATE`)
	if err != nil {
		return 0, err
	}
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for i, id := range ids {
		if _, err := tx.Exec(ctx, `UPDATE clients SET client_id = $2 WHERE id = $1`,
			id, fmt.Sprintf("tmp-%d", i+1)); err != nil {
			return 0, err
		}
	}
	for i, id := range ids {
		if _, err := tx.Exec(ctx, `UPDATE clients SET client_id = $2, updated_at = now() WHERE id = $1`,
			id, FormatClientID(i+1)); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(ids), nil
}

// SnapshotPolicyAll overwrites every client's policy fields with the given
// policy. Used by the propagation job after a global config save.
func (r *Repository) SnapshotPolicyAll(ctx context.Context, p rate.Policy) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clients SET
			rate_per_kg = $1, usd_surcharge = $2, base_rate = $3, extra_rate_per_kg = $4,
			discount_type = $5, discount_value = $6,
			updated_at = now()`,
		p.RatePerKg, p.USDSurcharge, p.BaseRate, p.ExtraRatePerKg, p.DiscountType, p.DiscountValue,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
