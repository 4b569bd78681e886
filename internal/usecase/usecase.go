package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/shortcode"
	"golang.org/x/sync/singleflight"
)

const (
	maxURLLength = 2048
	maxPageSize  = 100
)

type urlRepository interface {
	FindActiveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
	FindActiveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error)
	Insert(ctx context.Context, shortCode, originalURL, clientIP string) (*entity.URL, error)
	SetShortCode(ctx context.Context, id int64, shortCode string) (*entity.URL, error)
	IncrementClicks(ctx context.Context, shortCode string) error
	SoftDelete(ctx context.Context, shortCode string) error
	Page(ctx context.Context, limit, offset int) (*entity.URLPage, error)
	Aggregate(ctx context.Context, since time.Time) (*entity.Analytics, error)
	Ping(ctx context.Context) error
}

type urlCache interface {
	GetURL(ctx context.Context, shortCode string) (string, error)
	PutURL(ctx context.Context, shortCode, originalURL string) error
	FillURL(ctx context.Context, shortCode, originalURL string) error
	EvictURL(ctx context.Context, shortCode string) error
	Ping(ctx context.Context) error
}

type Config struct {
	ShortCodeLength int
	MaxRetries      int
	BaseDelay       time.Duration
	StoreTimeout    time.Duration
	CacheTimeout    time.Duration
}

// ShortenInput is a request to issue a short code for OriginalURL.
type ShortenInput struct {
	OriginalURL string
	CustomAlias string
	ClientIP    string
}

func (in ShortenInput) validate() error {
	if len(in.OriginalURL) > maxURLLength {
		return fmt.Errorf("%w: %w: longer than %d characters", entity.ErrValidation, entity.ErrInvalidURL, maxURLLength)
	}

	u, err := url.Parse(in.OriginalURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %w", entity.ErrValidation, entity.ErrInvalidURL)
	}

	if in.CustomAlias != "" && !shortcode.IsValidAlias(in.CustomAlias) {
		return fmt.Errorf("%w: %w", entity.ErrValidation, entity.ErrInvalidAlias)
	}

	return nil
}

// HealthReport tells whether each backing service answered a ping.
type HealthReport struct {
	Database bool
	Cache    bool
}

func (r HealthReport) Healthy() bool {
	return r.Database && r.Cache
}

type URLUseCase struct {
	cfg          Config
	abandonAfter time.Duration
	urlRepo  urlRepository
	urlCache urlCache
	logger   *slog.Logger
	lookups  singleflight.Group
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	closed bool
	clicks sync.WaitGroup
}

func New(cfg Config, urlRepo urlRepository, urlCache urlCache, logger *slog.Logger) *URLUseCase {
	return &URLUseCase{
		cfg:          cfg,
		abandonAfter: abandonAfter(cfg),
		urlRepo:  urlRepo,
		urlCache: urlCache,
		logger:   logger,
		now:      time.Now,
		sleep:    sleep,
	}
}

// abandonAfter is the age past which a placeholder record can no longer be
// finalized by the request that inserted it: that request spends at most two
// store calls after the insert, and waiters give up after the full backoff.
func abandonAfter(cfg Config) time.Duration {
	d := 2 * cfg.StoreTimeout
	delay := cfg.BaseDelay
	for i := 0; i < cfg.MaxRetries; i++ {
		d += delay
		delay *= 2
	}
	return d
}

// issuanceBackOff yields BaseDelay, 2*BaseDelay, ... for MaxRetries waits and
// stops early once ctx is done.
func (uc *URLUseCase) issuanceBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = uc.cfg.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(uc.cfg.MaxRetries)), ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ShortenURL returns the active record for in.OriginalURL, creating it if none
// exists. Concurrent calls for the same URL all return the same record.
func (uc *URLUseCase) ShortenURL(ctx context.Context, in ShortenInput) (*entity.URL, error) {
	const op = "usecase.URLUseCase.ShortenURL"

	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	existing, err := uc.findActiveByOriginalURL(ctx, in.OriginalURL)
	switch {
	case err == nil && !shortcode.IsPlaceholder(existing.ShortCode):
		return existing, nil
	case err == nil && uc.now().Sub(existing.CreatedAt) > uc.abandonAfter:
		uc.logger.Warn("reclaiming abandoned record",
			slog.String("op", op),
			slog.Int64("id", existing.ID),
			slog.Time("created_at", existing.CreatedAt),
		)
		uc.discard(ctx, existing.ShortCode)
	case err == nil:
		return uc.awaitIssuance(ctx, in.OriginalURL)
	case !errors.Is(err, entity.ErrURLNotFound):
		return nil, storeError(op, err)
	}

	if in.CustomAlias != "" {
		if err := uc.checkAlias(ctx, in.CustomAlias); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	placeholder, err := shortcode.NewPlaceholder()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	rec, err := uc.urlRepo.Insert(storeCtx, placeholder, in.OriginalURL, in.ClientIP)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrOriginalURLExists):
			return uc.awaitIssuance(ctx, in.OriginalURL)
		case errors.Is(err, entity.ErrShortCodeExists):
			return nil, fmt.Errorf("%s: %w: %w", op, entity.ErrIssuanceRace, err)
		default:
			// the insert may have committed before the call failed
			uc.discard(ctx, placeholder)
			return nil, storeError(op, err)
		}
	}

	code := in.CustomAlias
	if code == "" {
		code = shortcode.Derive(in.OriginalURL, rec.ID, uc.cfg.ShortCodeLength)
	}

	storeCtx, cancel = context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	url, err := uc.urlRepo.SetShortCode(storeCtx, rec.ID, code)
	cancel()
	if err != nil {
		uc.discard(ctx, placeholder)

		switch {
		case errors.Is(err, entity.ErrShortCodeExists) && in.CustomAlias != "":
			return nil, fmt.Errorf("%s: %w", op, entity.ErrAliasTaken)
		case errors.Is(err, entity.ErrShortCodeExists):
			return nil, fmt.Errorf("%s: %w: %w", op, entity.ErrIssuanceRace, err)
		default:
			return nil, storeError(op, err)
		}
	}

	cacheCtx, cancel := context.WithTimeout(ctx, uc.cfg.CacheTimeout)
	defer cancel()

	if err := uc.urlCache.PutURL(cacheCtx, url.ShortCode, url.OriginalURL); err != nil {
		uc.logger.Warn("failed to cache issued url",
			slog.String("op", op),
			slog.String("short_code", url.ShortCode),
			slog.Any("err", err),
		)
	}

	return url, nil
}

func (uc *URLUseCase) findActiveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	return uc.urlRepo.FindActiveByOriginalURL(ctx, originalURL)
}

func (uc *URLUseCase) checkAlias(ctx context.Context, alias string) error {
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	_, err := uc.urlRepo.FindActiveByShortCode(ctx, alias)
	switch {
	case err == nil:
		return entity.ErrAliasTaken
	case errors.Is(err, entity.ErrURLNotFound):
		return nil
	default:
		return storeError("usecase.URLUseCase.checkAlias", err)
	}
}

// awaitIssuance waits for a concurrent request that holds the record of
// originalURL to finalize it. A timed out or failed read consumes an attempt.
func (uc *URLUseCase) awaitIssuance(ctx context.Context, originalURL string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.awaitIssuance"

	b := uc.issuanceBackOff(ctx)
	for attempt := 1; ; attempt++ {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		if err := uc.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		url, err := uc.findActiveByOriginalURL(ctx, originalURL)
		switch {
		case err == nil && !shortcode.IsPlaceholder(url.ShortCode):
			return url, nil
		case err == nil, errors.Is(err, entity.ErrURLNotFound):
			continue
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return nil, fmt.Errorf("%s: %w", op, err)
		default:
			uc.logger.Debug("issuance retry read failed",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Any("err", err),
			)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	uc.logger.Warn("concurrent issuance did not finalize in time",
		slog.String("op", op),
		slog.String("original_url", originalURL),
		slog.Int("attempts", uc.cfg.MaxRetries),
	)

	return nil, fmt.Errorf("%s: %w", op, entity.ErrIssuanceRace)
}

// discard deactivates a record whose finalization failed so it no longer
// holds its original URL.
func (uc *URLUseCase) discard(ctx context.Context, placeholder string) {
	const op = "usecase.URLUseCase.discard"

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.StoreTimeout)
	defer cancel()

	err := uc.urlRepo.SoftDelete(ctx, placeholder)
	switch {
	case err == nil:
	case errors.Is(err, entity.ErrURLNotFound):
		uc.logger.Debug("unfinished record already gone",
			slog.String("op", op),
			slog.String("short_code", placeholder),
		)
	default:
		uc.logger.Error("failed to deactivate unfinished record",
			slog.String("op", op),
			slog.String("short_code", placeholder),
			slog.Any("err", err),
		)
	}
}

// ResolveShortCode returns the original URL of an active short code and
// counts the resolution.
func (uc *URLUseCase) ResolveShortCode(ctx context.Context, shortCode string) (string, error) {
	const op = "usecase.URLUseCase.ResolveShortCode"

	if !shortcode.IsValidCode(shortCode) {
		return "", fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, uc.cfg.CacheTimeout)
	originalURL, err := uc.urlCache.GetURL(cacheCtx, shortCode)
	cancel()
	if err == nil {
		uc.countClickAsync(ctx, shortCode)
		return originalURL, nil
	}
	if !errors.Is(err, entity.ErrCacheMiss) {
		uc.logger.Warn("cache lookup failed, falling back to store",
			slog.String("op", op),
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}

	v, err, _ := uc.lookups.Do(shortCode, func() (any, error) {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.StoreTimeout)
		defer cancel()

		return uc.urlRepo.FindActiveByShortCode(storeCtx, shortCode)
	})
	if err != nil {
		if errors.Is(err, entity.ErrURLNotFound) {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return "", storeError(op, err)
	}
	url := v.(*entity.URL)

	cacheCtx, cancel = context.WithTimeout(ctx, uc.cfg.CacheTimeout)
	if err := uc.urlCache.FillURL(cacheCtx, shortCode, url.OriginalURL); err != nil {
		uc.logger.Warn("failed to populate cache",
			slog.String("op", op),
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}
	cancel()

	storeCtx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	if err := uc.urlRepo.IncrementClicks(storeCtx, shortCode); err != nil {
		if errors.Is(err, entity.ErrURLNotFound) {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return "", storeError(op, err)
	}

	return url.OriginalURL, nil
}

// countClickAsync records a cache hit without delaying the caller. Failures
// are logged and dropped.
func (uc *URLUseCase) countClickAsync(ctx context.Context, shortCode string) {
	const op = "usecase.URLUseCase.countClickAsync"

	uc.mu.RLock()
	defer uc.mu.RUnlock()

	if uc.closed {
		uc.logger.Warn("dropping click after shutdown",
			slog.String("op", op),
			slog.String("short_code", shortCode),
		)
		return
	}

	uc.clicks.Add(1)
	go func() {
		defer uc.clicks.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.StoreTimeout)
		defer cancel()

		if err := uc.urlRepo.IncrementClicks(ctx, shortCode); err != nil {
			uc.logger.Warn("failed to count click",
				slog.String("op", op),
				slog.String("short_code", shortCode),
				slog.Any("err", err),
			)
		}
	}()
}

// GetURLInfo returns the active record of shortCode without counting a click.
func (uc *URLUseCase) GetURLInfo(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.GetURLInfo"

	if !shortcode.IsValidCode(shortCode) {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	url, err := uc.urlRepo.FindActiveByShortCode(ctx, shortCode)
	if err != nil {
		if errors.Is(err, entity.ErrURLNotFound) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, storeError(op, err)
	}

	return url, nil
}

// ListURLs returns one page of records, newest first. page starts at 1.
func (uc *URLUseCase) ListURLs(ctx context.Context, page, pageSize int) (*entity.URLPage, error) {
	const op = "usecase.URLUseCase.ListURLs"

	if page < 1 || pageSize < 1 || pageSize > maxPageSize {
		return nil, fmt.Errorf("%s: %w: page must be at least 1 and page size between 1 and %d",
			op, entity.ErrValidation, maxPageSize)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	urls, err := uc.urlRepo.Page(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, storeError(op, err)
	}

	return urls, nil
}

// GetAnalytics aggregates all records. Today starts at local midnight.
func (uc *URLUseCase) GetAnalytics(ctx context.Context) (*entity.Analytics, error) {
	const op = "usecase.URLUseCase.GetAnalytics"

	now := uc.now()
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	a, err := uc.urlRepo.Aggregate(ctx, midnight)
	if err != nil {
		return nil, storeError(op, err)
	}

	return a, nil
}

// DeactivateURL evicts shortCode from the cache and then soft deletes its
// record, so a following resolution reports it as not found. The record stays
// active while the eviction fails, which keeps the call retryable.
func (uc *URLUseCase) DeactivateURL(ctx context.Context, shortCode string) error {
	const op = "usecase.URLUseCase.DeactivateURL"

	if !shortcode.IsValidCode(shortCode) {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, uc.cfg.CacheTimeout)
	err := uc.urlCache.EvictURL(cacheCtx, shortCode)
	cancel()
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, entity.ErrCacheUnavailable, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	if err := uc.urlRepo.SoftDelete(storeCtx, shortCode); err != nil {
		if errors.Is(err, entity.ErrURLNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return storeError(op, err)
	}

	return nil
}

func (uc *URLUseCase) CheckHealth(ctx context.Context) HealthReport {
	storeCtx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	cacheCtx, cancel := context.WithTimeout(ctx, uc.cfg.CacheTimeout)
	defer cancel()

	return HealthReport{
		Database: uc.urlRepo.Ping(storeCtx) == nil,
		Cache:    uc.urlCache.Ping(cacheCtx) == nil,
	}
}

// Close stops accepting background click updates and waits for the pending
// ones until ctx is done.
func (uc *URLUseCase) Close(ctx context.Context) error {
	const op = "usecase.URLUseCase.Close"

	uc.mu.Lock()
	uc.closed = true
	uc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		uc.clicks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: pending click updates: %w", op, ctx.Err())
	}
}

// storeError classifies an unexpected record store failure, keeping the cause.
func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, entity.ErrStoreUnavailable, err)
}
