// Package memory is an in-process record store with the same uniqueness rules
// as the Postgres schema. It backs the dev environment and concurrency tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/shortcode"
)

type URLRepository struct {
	mu          sync.RWMutex
	rows        []*entity.URL    // rows[id-1]
	byShortCode map[string]int64 // every row, active or not
	activeByURL map[string]int64
	now         func() time.Time
}

func NewURLRepository() *URLRepository {
	return &URLRepository{
		byShortCode: make(map[string]int64),
		activeByURL: make(map[string]int64),
		now:         time.Now,
	}
}

func (r *URLRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *URLRepository) FindActiveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.FindActiveByShortCode"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byShortCode[shortCode]
	if !ok || !r.rows[id-1].IsActive {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return clone(r.rows[id-1]), nil
}

func (r *URLRepository) FindActiveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.FindActiveByOriginalURL"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.activeByURL[originalURL]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return clone(r.rows[id-1]), nil
}

func (r *URLRepository) Insert(ctx context.Context, shortCode, originalURL, clientIP string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.Insert"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activeByURL[originalURL]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrOriginalURLExists)
	}
	if _, ok := r.byShortCode[shortCode]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}

	url := &entity.URL{
		ID:          int64(len(r.rows) + 1),
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		IsActive:    true,
		CreatedByIP: clientIP,
		CreatedAt:   r.now(),
	}

	r.rows = append(r.rows, url)
	r.byShortCode[shortCode] = url.ID
	r.activeByURL[originalURL] = url.ID

	return clone(url), nil
}

func (r *URLRepository) SetShortCode(ctx context.Context, id int64, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.SetShortCode"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 1 || id > int64(len(r.rows)) {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url := r.rows[id-1]
	if url.ShortCode == shortCode {
		return clone(url), nil
	}
	if _, ok := r.byShortCode[shortCode]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}

	delete(r.byShortCode, url.ShortCode)
	url.ShortCode = shortCode
	r.byShortCode[shortCode] = url.ID

	return clone(url), nil
}

func (r *URLRepository) IncrementClicks(ctx context.Context, shortCode string) error {
	const op = "adapter.repository.memory.URLRepository.IncrementClicks"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byShortCode[shortCode]
	if !ok || !r.rows[id-1].IsActive {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url := r.rows[id-1]
	now := r.now()
	url.ClickCount++
	url.LastAccessedAt = &now

	return nil
}

func (r *URLRepository) SoftDelete(ctx context.Context, shortCode string) error {
	const op = "adapter.repository.memory.URLRepository.SoftDelete"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byShortCode[shortCode]
	if !ok || !r.rows[id-1].IsActive {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url := r.rows[id-1]
	url.IsActive = false
	delete(r.activeByURL, url.OriginalURL)

	return nil
}

func (r *URLRepository) Page(ctx context.Context, limit, offset int) (*entity.URLPage, error) {
	const op = "adapter.repository.memory.URLRepository.Page"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	urls := make([]*entity.URL, 0, len(r.rows))
	for _, url := range r.rows {
		if !shortcode.IsPlaceholder(url.ShortCode) {
			urls = append(urls, url)
		}
	}

	sort.SliceStable(urls, func(i, j int) bool {
		if urls[i].CreatedAt.Equal(urls[j].CreatedAt) {
			return urls[i].ID > urls[j].ID
		}
		return urls[i].CreatedAt.After(urls[j].CreatedAt)
	})

	page := &entity.URLPage{
		URLs:  []*entity.URL{},
		Total: int64(len(urls)),
	}
	if offset >= len(urls) {
		return page, nil
	}

	end := min(offset+limit, len(urls))
	for _, url := range urls[offset:end] {
		page.URLs = append(page.URLs, clone(url))
	}

	return page, nil
}

func (r *URLRepository) Aggregate(ctx context.Context, since time.Time) (*entity.Analytics, error) {
	const op = "adapter.repository.memory.URLRepository.Aggregate"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var a entity.Analytics
	for _, url := range r.rows {
		if shortcode.IsPlaceholder(url.ShortCode) {
			continue
		}

		a.TotalURLs++
		a.TotalClicks += url.ClickCount
		if url.IsActive {
			a.ActiveURLs++
		}
		if url.LastAccessedAt != nil && !url.LastAccessedAt.Before(since) {
			a.ClicksToday += url.ClickCount
		}
	}

	return &a, nil
}

func clone(url *entity.URL) *entity.URL {
	c := *url
	if url.LastAccessedAt != nil {
		t := *url.LastAccessedAt
		c.LastAccessedAt = &t
	}
	return &c
}
