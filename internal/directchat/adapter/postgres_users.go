package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aelexs/directchat/internal/directchat/app"
	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/postgres"
)

// Compile-time check: UserDirectory satisfies app.UserDirectory.
var _ app.UserDirectory = (*UserDirectory)(nil)

// UserDirectory answers user existence from the identity service's users
// table. Positive answers are cached; a user is never deleted while this
// service runs, but may be created at any moment, so misses are not cached.
type UserDirectory struct {
	db      postgres.Querier
	query   string
	timeout time.Duration
	known   *expirable.LRU[domain.UserID, struct{}]
}

// UserDirectoryConfig holds the parameters for NewUserDirectory.
type UserDirectoryConfig struct {
	Table     string // Possibly schema-qualified; defaults to "users"
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// NewUserDirectory creates a UserDirectory reading from cfg.Table.
func NewUserDirectory(db postgres.Querier, cfg UserDirectoryConfig) *UserDirectory {
	table := cfg.Table
	if table == "" {
		table = "users"
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = domain.UserExistsCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = domain.UserExistsCacheTTL
	}

	return &UserDirectory{
		db:      db,
		query:   fmt.Sprintf("SELECT id::text FROM %s WHERE id = ANY($1::uuid[])", postgres.QuoteIdentifier(table)),
		timeout: cfg.Timeout,
		known:   expirable.NewLRU[domain.UserID, struct{}](size, nil, ttl),
	}
}

// ExistingUserIDs returns the subset of ids that exist, deduplicated.
func (d *UserDirectory) ExistingUserIDs(ctx context.Context, ids []domain.UserID) ([]domain.UserID, error) {
	ids = lo.Uniq(ids)

	found, missing := lo.FilterReject(ids, func(id domain.UserID, _ int) bool {
		return d.known.Contains(id)
	})
	if len(missing) == 0 {
		return found, nil
	}

	ctx, span := tracer.Start(ctx, "postgres.users.exist")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.Int("lookup.count", len(missing)),
	)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	rows, err := d.db.Query(ctx, d.query, lo.Map(missing, func(id domain.UserID, _ int) string { return id.String() }))
	if err != nil {
		return nil, recordError(span, fmt.Errorf("lookup users: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, recordError(span, fmt.Errorf("scan user id: %w", err))
		}
		id, err := domain.NewUserID(raw)
		if err != nil {
			return nil, recordError(span, err)
		}
		d.known.Add(id, struct{}{})
		found = append(found, id)
	}
	if err := rows.Err(); err != nil {
		return nil, recordError(span, fmt.Errorf("iterate user ids: %w", err))
	}

	return found, nil
}
