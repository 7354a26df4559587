package mocks

import (
	"context"

	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/hosting"
	"github.com/stretchr/testify/mock"
)

// MockHostingClient implements hosting.Client for testing
type MockHostingClient struct {
	mock.Mock
}

func (m *MockHostingClient) Supports(kind domain.SourceKind) bool {
	args := m.Called(kind)
	return args.Bool(0)
}

func (m *MockHostingClient) CreateDeployment(ctx context.Context, req domain.DeploymentRequest) (hosting.Handle, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(hosting.Handle), args.Error(1)
}

func (m *MockHostingClient) PollDeploymentStatus(ctx context.Context, h hosting.Handle) (hosting.Status, error) {
	args := m.Called(ctx, h)
	return args.Get(0).(hosting.Status), args.Error(1)
}
