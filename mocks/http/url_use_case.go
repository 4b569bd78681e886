package http

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
)

// MockUrlUseCase is a testify mock of the use case behind the HTTP handlers.
type MockUrlUseCase struct {
	mock.Mock
}

func (m *MockUrlUseCase) ShortenURL(ctx context.Context, in usecase.ShortenInput) (*entity.URL, error) {
	args := m.Called(ctx, in)
	url, _ := args.Get(0).(*entity.URL)
	return url, args.Error(1)
}

func (m *MockUrlUseCase) ResolveShortCode(ctx context.Context, shortCode string) (string, error) {
	args := m.Called(ctx, shortCode)
	return args.String(0), args.Error(1)
}

func (m *MockUrlUseCase) GetURLInfo(ctx context.Context, shortCode string) (*entity.URL, error) {
	args := m.Called(ctx, shortCode)
	url, _ := args.Get(0).(*entity.URL)
	return url, args.Error(1)
}

func (m *MockUrlUseCase) ListURLs(ctx context.Context, page, pageSize int) (*entity.URLPage, error) {
	args := m.Called(ctx, page, pageSize)
	urls, _ := args.Get(0).(*entity.URLPage)
	return urls, args.Error(1)
}

func (m *MockUrlUseCase) GetAnalytics(ctx context.Context) (*entity.Analytics, error) {
	args := m.Called(ctx)
	a, _ := args.Get(0).(*entity.Analytics)
	return a, args.Error(1)
}

func (m *MockUrlUseCase) DeactivateURL(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

func (m *MockUrlUseCase) CheckHealth(ctx context.Context) usecase.HealthReport {
	args := m.Called(ctx)
	return args.Get(0).(usecase.HealthReport)
}

// NewMockUrlUseCase creates a MockUrlUseCase whose expectations are asserted on cleanup.
func NewMockUrlUseCase(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUrlUseCase {
	m := &MockUrlUseCase{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
