package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audit entries in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertEntry(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_kind, actor_user_id, action, resource_type, resource_id,
			method, path, route, status, ip, user_agent, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ActorKind, e.ActorUserID, e.Action, e.ResourceType, nilIfEmpty(e.ResourceID),
		e.Method, e.Path, nilIfEmpty(e.Route), e.Status,
		nilIfEmpty(e.IP), nilIfEmpty(e.UserAgent), nilIfEmpty(e.RequestID),
		e.Metadata,
	)
	return err
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *Repository) ListEntries(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_kind, actor_user_id, action, resource_type,
		       coalesce(resource_id, ''), method, path, coalesce(route, ''), status,
		       coalesce(ip, ''), coalesce(user_agent, ''), coalesce(request_id, ''),
		       metadata, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.ActorKind, &e.ActorUserID, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.Method, &e.Path, &e.Route, &e.Status,
			&e.IP, &e.UserAgent, &e.RequestID, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
