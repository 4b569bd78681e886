package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const (
	uniqueViolationErrCode = "23505"

	shortCodeConstraint   = "urls_short_code_key"
	originalURLConstraint = "urls_active_original_url_key"
)

const urlColumns = `id, short_code, original_url, is_active, click_count, created_by_ip, created_at, last_accessed_at`

// finalized excludes rows still carrying a placeholder code.
const finalized = `left(short_code, 1) <> '~'`

// uniqueViolation maps a unique constraint violation to the matching entity
// error and returns nil for any other error.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.SQLState() != uniqueViolationErrCode {
		return nil
	}

	if pgErr.ConstraintName == originalURLConstraint {
		return entity.ErrOriginalURLExists
	}
	return entity.ErrShortCodeExists
}

type urlDB struct {
	ID             int64        `db:"id"`
	ShortCode      string       `db:"short_code"`
	OriginalURL    string       `db:"original_url"`
	IsActive       bool         `db:"is_active"`
	ClickCount     int64        `db:"click_count"`
	CreatedByIP    string       `db:"created_by_ip"`
	CreatedAt      time.Time    `db:"created_at"`
	LastAccessedAt sql.NullTime `db:"last_accessed_at"`
}

func (u *urlDB) toEntity() *entity.URL {
	url := &entity.URL{
		ID:          u.ID,
		ShortCode:   u.ShortCode,
		OriginalURL: u.OriginalURL,
		IsActive:    u.IsActive,
		URLStats: entity.URLStats{
			ClickCount: u.ClickCount,
		},
		CreatedByIP: u.CreatedByIP,
		CreatedAt:   u.CreatedAt,
	}

	if u.LastAccessedAt.Valid {
		t := u.LastAccessedAt.Time
		url.LastAccessedAt = &t
	}

	return url
}

type analyticsDB struct {
	TotalURLs   int64 `db:"total_urls"`
	ActiveURLs  int64 `db:"active_urls"`
	TotalClicks int64 `db:"total_clicks"`
	ClicksToday int64 `db:"clicks_today"`
}

// URLRepository is the Postgres record store. Uniqueness of short codes and of
// active original URLs is enforced by the schema and reported as entity errors.
type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{db: db}
}

func (r *URLRepository) Ping(ctx context.Context) error {
	const op = "adapter.repository.postgres.URLRepository.Ping"

	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return nil
}

func (r *URLRepository) FindActiveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.FindActiveByShortCode"
	const query = `SELECT ` + urlColumns + ` FROM urls WHERE short_code = $1 AND is_active`

	return r.getOne(ctx, op, query, shortCode)
}

func (r *URLRepository) FindActiveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.FindActiveByOriginalURL"
	const query = `SELECT ` + urlColumns + ` FROM urls WHERE original_url = $1 AND is_active`

	return r.getOne(ctx, op, query, originalURL)
}

func (r *URLRepository) getOne(ctx context.Context, op, query string, arg string) (*entity.URL, error) {
	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from urls table: %w", op, err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) Insert(ctx context.Context, shortCode, originalURL, clientIP string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.Insert"
	const query = `INSERT INTO urls(short_code, original_url, created_by_ip) VALUES ($1, $2, $3) RETURNING ` + urlColumns

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, shortCode, originalURL, clientIP); err != nil {
		if kind := uniqueViolation(err); kind != nil {
			return nil, fmt.Errorf("%s: %w", op, kind)
		}

		return nil, fmt.Errorf("%s: failed to insert into urls table: %w", op, err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) SetShortCode(ctx context.Context, id int64, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.SetShortCode"
	const query = `UPDATE urls SET short_code = $1 WHERE id = $2 RETURNING ` + urlColumns

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, shortCode, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}
		if kind := uniqueViolation(err); kind != nil {
			return nil, fmt.Errorf("%s: %w", op, kind)
		}

		return nil, fmt.Errorf("%s: failed to update urls table row: %w", op, err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) IncrementClicks(ctx context.Context, shortCode string) error {
	const op = "adapter.repository.postgres.URLRepository.IncrementClicks"
	const query = `UPDATE urls SET click_count = click_count + 1, last_accessed_at = NOW() WHERE short_code = $1 AND is_active`

	return r.execOne(ctx, op, query, shortCode)
}

func (r *URLRepository) SoftDelete(ctx context.Context, shortCode string) error {
	const op = "adapter.repository.postgres.URLRepository.SoftDelete"
	const query = `UPDATE urls SET is_active = FALSE WHERE short_code = $1 AND is_active`

	return r.execOne(ctx, op, query, shortCode)
}

func (r *URLRepository) execOne(ctx context.Context, op, query string, arg string) error {
	res, err := r.db.ExecContext(ctx, query, arg)
	if err != nil {
		return fmt.Errorf("%s: failed to update urls table row: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return nil
}

func (r *URLRepository) Page(ctx context.Context, limit, offset int) (*entity.URLPage, error) {
	const op = "adapter.repository.postgres.URLRepository.Page"
	const countQuery = `SELECT COUNT(*) FROM urls WHERE ` + finalized
	const pageQuery = `SELECT ` + urlColumns + ` FROM urls WHERE ` + finalized +
		` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery); err != nil {
		return nil, fmt.Errorf("%s: failed to count urls table rows: %w", op, err)
	}

	var rows []urlDB
	if err := r.db.SelectContext(ctx, &rows, pageQuery, limit, offset); err != nil {
		return nil, fmt.Errorf("%s: failed to select urls table rows: %w", op, err)
	}

	page := &entity.URLPage{
		URLs:  make([]*entity.URL, 0, len(rows)),
		Total: total,
	}
	for i := range rows {
		page.URLs = append(page.URLs, rows[i].toEntity())
	}

	return page, nil
}

func (r *URLRepository) Aggregate(ctx context.Context, since time.Time) (*entity.Analytics, error) {
	const op = "adapter.repository.postgres.URLRepository.Aggregate"
	const query = `SELECT
		COUNT(*) AS total_urls,
		COUNT(*) FILTER (WHERE is_active) AS active_urls,
		COALESCE(SUM(click_count), 0) AS total_clicks,
		COALESCE(SUM(click_count) FILTER (WHERE last_accessed_at >= $1), 0) AS clicks_today
	FROM urls WHERE ` + finalized

	var a analyticsDB
	if err := r.db.GetContext(ctx, &a, query, since); err != nil {
		return nil, fmt.Errorf("%s: failed to aggregate urls table: %w", op, err)
	}

	return &entity.Analytics{
		TotalURLs:   a.TotalURLs,
		ActiveURLs:  a.ActiveURLs,
		TotalClicks: a.TotalClicks,
		ClicksToday: a.ClicksToday,
	}, nil
}
