package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// PostgresCatalog stores products in catalog.products.
type PostgresCatalog struct {
	PG     *pgxpool.Pool
	logger *zap.Logger
}

// NewPool opens a pgx pool and pings it.
func NewPool(ctx context.Context, pgURL string, cfg PGPoolConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

func NewPostgresCatalog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresCatalog{PG: pool, logger: logger}
}

const productColumns = `id, media_ref, price::text, sizes, sub_attributes, listing_ref, is_sold, is_deleted, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (model.Product, error) {
	var (
		p     model.Product
		price string
		sizes []string
		subs  map[string]string
	)
	if err := row.Scan(&p.ID, &p.MediaRef, &price, &sizes, &subs, &p.ListingRef, &p.IsSold, &p.IsDeleted, &p.UpdatedAt); err != nil {
		return model.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return model.Product{}, fmt.Errorf("product %s price %q: %w", p.ID, price, err)
	}
	p.Price = d
	p.Sizes = model.Sizes(sizes).Sorted()
	p.SubAttributes = subs
	return p, nil
}

func (s *PostgresCatalog) Get(ctx context.Context, productID string) (model.Product, error) {
	row := s.PG.QueryRow(ctx, `SELECT `+productColumns+` FROM catalog.products WHERE id = $1`, productID)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Product{}, fmt.Errorf("product %s: %w", productID, model.ErrNotFound)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	return p, nil
}

func (s *PostgresCatalog) ListUnsold(ctx context.Context) ([]model.Product, error) {
	return s.list(ctx, `SELECT `+productColumns+`
		FROM catalog.products
		WHERE NOT is_sold AND NOT is_deleted
		ORDER BY created_at, id`)
}

func (s *PostgresCatalog) ListBySize(ctx context.Context, size string) ([]model.Product, error) {
	return s.list(ctx, `SELECT `+productColumns+`
		FROM catalog.products
		WHERE NOT is_sold AND NOT is_deleted AND $1 = ANY(sizes)
		ORDER BY created_at, id`, size)
}

func (s *PostgresCatalog) list(ctx context.Context, q string, args ...any) ([]model.Product, error) {
	rows, err := s.PG.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresCatalog) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Sizes = p.Sizes.Sorted()
	p.IsSold = len(p.Sizes) == 0
	if p.SubAttributes == nil {
		p.SubAttributes = map[string]string{}
	}

	row := s.PG.QueryRow(ctx, `
		INSERT INTO catalog.products (id, media_ref, price, sizes, sub_attributes, listing_ref, is_sold)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING `+productColumns,
		p.ID, p.MediaRef, p.Price.String(), []string(p.Sizes), p.SubAttributes, p.ListingRef, p.IsSold,
	)
	created, err := scanProduct(row)
	if err != nil {
		s.logger.Error("store.pg.insert_product_failed", zap.String("product_id", p.ID), zap.Error(err))
		if isUniqueViolation(err) {
			return model.Product{}, fmt.Errorf("product %s already exists: %w", p.ID, model.ErrMalformedInput)
		}
		return model.Product{}, err
	}
	return created, nil
}

func (s *PostgresCatalog) UpdateSizes(ctx context.Context, productID string, sizes model.Sizes) (model.Product, error) {
	sorted := sizes.Sorted()
	row := s.PG.QueryRow(ctx, `
		UPDATE catalog.products
		SET sizes = $2, is_sold = $3, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted
		RETURNING `+productColumns,
		productID, []string(sorted), len(sorted) == 0,
	)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Product{}, fmt.Errorf("product %s: %w", productID, model.ErrNotFound)
	}
	return p, err
}

func (s *PostgresCatalog) UpdatePrice(ctx context.Context, productID string, price decimal.Decimal) error {
	return s.execOne(ctx, productID, `
		UPDATE catalog.products SET price = $2::numeric, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted`, productID, price.String())
}

func (s *PostgresCatalog) UpdateListingRef(ctx context.Context, productID, ref string) error {
	return s.execOne(ctx, productID, `
		UPDATE catalog.products SET listing_ref = $2, updated_at = NOW()
		WHERE id = $1`, productID, ref)
}

func (s *PostgresCatalog) MarkDeleted(ctx context.Context, productID string) error {
	return s.execOne(ctx, productID, `
		UPDATE catalog.products SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1`, productID)
}

func (s *PostgresCatalog) execOne(ctx context.Context, productID, q string, args ...any) error {
	tag, err := s.PG.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", productID, model.ErrNotFound)
	}
	return nil
}

func (s *PostgresCatalog) CommitSale(ctx context.Context, items []model.Item) error {
	ids, grouped := groupByProduct(items)
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, id := range ids {
			p, err := scanProduct(tx.QueryRow(ctx,
				`SELECT `+productColumns+` FROM catalog.products WHERE id = $1 FOR UPDATE`, id))
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("product %s: %w", id, model.ErrUnitMissing)
			}
			if err != nil {
				return err
			}
			sizes := p.Sizes
			for _, size := range grouped[id] {
				next, ok := sizes.Without(size)
				if !ok {
					return fmt.Errorf("product %s size %s: %w", id, size, model.ErrUnitMissing)
				}
				sizes = next
			}
			if _, err := tx.Exec(ctx, `
				UPDATE catalog.products SET sizes = $2, is_sold = $3, updated_at = NOW()
				WHERE id = $1`, id, []string(sizes.Sorted()), len(sizes) == 0); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresCatalog) RestoreUnits(ctx context.Context, items []model.Item) error {
	ids, grouped := groupByProduct(items)
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, id := range ids {
			p, err := scanProduct(tx.QueryRow(ctx,
				`SELECT `+productColumns+` FROM catalog.products WHERE id = $1 FOR UPDATE`, id))
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("product %s: %w", id, model.ErrNotFound)
			}
			if err != nil {
				return err
			}
			sizes := p.Sizes
			for _, size := range grouped[id] {
				sizes = sizes.With(size)
			}
			if _, err := tx.Exec(ctx, `
				UPDATE catalog.products SET sizes = $2, is_sold = FALSE, updated_at = NOW()
				WHERE id = $1`, id, []string(sizes)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresCatalog) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.PG.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresCatalog) HealthCheck(ctx context.Context) error {
	if s.PG == nil {
		return fmt.Errorf("postgres not initialized")
	}
	if err := s.PG.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *PostgresCatalog) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
