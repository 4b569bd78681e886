package http

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vadimbarashkov/shortlink/internal/ratelimit"
)

// MockRateLimiter is a testify mock of the limiter guarding URL creation.
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, clientID string) (ratelimit.Decision, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).(ratelimit.Decision), args.Error(1)
}

// NewMockRateLimiter creates a MockRateLimiter whose expectations are asserted on cleanup.
func NewMockRateLimiter(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRateLimiter {
	m := &MockRateLimiter{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
