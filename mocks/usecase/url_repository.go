package usecase

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

// MockUrlRepository is a testify mock of the use case record store.
type MockUrlRepository struct {
	mock.Mock
}

func (m *MockUrlRepository) FindActiveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	args := m.Called(ctx, shortCode)
	url, _ := args.Get(0).(*entity.URL)
	return url, args.Error(1)
}

func (m *MockUrlRepository) FindActiveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	args := m.Called(ctx, originalURL)
	url, _ := args.Get(0).(*entity.URL)
	return url, args.Error(1)
}

func (m *MockUrlRepository) Insert(ctx context.Context, shortCode, originalURL, clientIP string) (*entity.URL, error) {
	args := m.Called(ctx, shortCode, originalURL, clientIP)
	url, _ := args.Get(0).(*entity.URL)
	return url, args.Error(1)
}

func (m *MockUrlRepository) SetShortCode(ctx context.Context, id int64, shortCode string) (*entity.URL, error) {
	args := m.Called(ctx, id, shortCode)
	url, _ := args.Get(0).(*entity.URL)
	return url, args.Error(1)
}

func (m *MockUrlRepository) IncrementClicks(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

func (m *MockUrlRepository) SoftDelete(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

func (m *MockUrlRepository) Page(ctx context.Context, limit, offset int) (*entity.URLPage, error) {
	args := m.Called(ctx, limit, offset)
	page, _ := args.Get(0).(*entity.URLPage)
	return page, args.Error(1)
}

func (m *MockUrlRepository) Aggregate(ctx context.Context, since time.Time) (*entity.Analytics, error) {
	args := m.Called(ctx, since)
	a, _ := args.Get(0).(*entity.Analytics)
	return a, args.Error(1)
}

func (m *MockUrlRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// NewMockUrlRepository creates a MockUrlRepository whose expectations are asserted on cleanup.
func NewMockUrlRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUrlRepository {
	m := &MockUrlRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
