package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockUrlCache is a testify mock of the use case URL cache.
type MockUrlCache struct {
	mock.Mock
}

func (m *MockUrlCache) GetURL(ctx context.Context, shortCode string) (string, error) {
	args := m.Called(ctx, shortCode)
	return args.String(0), args.Error(1)
}

func (m *MockUrlCache) PutURL(ctx context.Context, shortCode, originalURL string) error {
	args := m.Called(ctx, shortCode, originalURL)
	return args.Error(0)
}

func (m *MockUrlCache) FillURL(ctx context.Context, shortCode, originalURL string) error {
	args := m.Called(ctx, shortCode, originalURL)
	return args.Error(0)
}

func (m *MockUrlCache) EvictURL(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

func (m *MockUrlCache) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// NewMockUrlCache creates a MockUrlCache whose expectations are asserted on cleanup.
func NewMockUrlCache(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUrlCache {
	m := &MockUrlCache{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
