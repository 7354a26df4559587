// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"

	"github.com/repotorpedo/torpedo/provider"
	"github.com/stretchr/testify/mock"
)

// MockProviderClient implements provider.Client for testing
type MockProviderClient struct {
	mock.Mock
}

func (m *MockProviderClient) AuthorizationURL(ctx context.Context, providerID string) (string, error) {
	args := m.Called(ctx, providerID)
	return args.String(0), args.Error(1)
}

func (m *MockProviderClient) VerifyAPIKey(ctx context.Context, providerID, key string) (provider.Account, error) {
	args := m.Called(ctx, providerID, key)
	return args.Get(0).(provider.Account), args.Error(1)
}

func (m *MockProviderClient) ConnectionStatus(ctx context.Context, providerID string) (provider.Status, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).(provider.Status), args.Error(1)
}

func (m *MockProviderClient) Revoke(ctx context.Context, providerID string) error {
	args := m.Called(ctx, providerID)
	return args.Error(0)
}
