package services

import (
	"context"
	"sync/atomic"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
)

// mockAdapter is a hand-rolled driven.PlatformAdapter for service tests.
// Unset function fields succeed with zero values.
type mockAdapter struct {
	platform string
	configID string

	searchFn   func(ctx context.Context, req domain.SearchRequest, accountIDs []string) ([]domain.MessageResult, error)
	refreshFn  func(ctx context.Context, accountID string) error
	validateFn func(ctx context.Context) error

	searchCalls     atomic.Int64
	refreshCalls    atomic.Int64
	disconnectCalls atomic.Int64
}

var _ driven.PlatformAdapter = (*mockAdapter)(nil)

func (m *mockAdapter) Platform() string { return m.platform }
func (m *mockAdapter) ConfigID() string { return m.configID }

func (m *mockAdapter) Search(ctx context.Context, req domain.SearchRequest, accountIDs []string) ([]domain.MessageResult, error) {
	m.searchCalls.Add(1)
	if m.searchFn != nil {
		return m.searchFn(ctx, req, accountIDs)
	}
	return nil, nil
}

func (m *mockAdapter) Authenticate(context.Context) error { return nil }

func (m *mockAdapter) RefreshCredentials(ctx context.Context, accountID string) error {
	m.refreshCalls.Add(1)
	if m.refreshFn != nil {
		return m.refreshFn(ctx, accountID)
	}
	return nil
}

func (m *mockAdapter) ValidateConnection(ctx context.Context) error {
	if m.validateFn != nil {
		return m.validateFn(ctx)
	}
	return nil
}

func (m *mockAdapter) TestConnection(ctx context.Context) error { return m.ValidateConnection(ctx) }

func (m *mockAdapter) GetUserInfo(context.Context, string) (*domain.UserInfo, error) {
	return &domain.UserInfo{ID: "u1", Name: "Test User"}, nil
}

func (m *mockAdapter) DeepLink(messageID string, _ map[string]string) (string, error) {
	return "https://example.com/" + messageID, nil
}

func (m *mockAdapter) Disconnect() error {
	m.disconnectCalls.Add(1)
	return nil
}

// mockFactory builds pre-registered mock adapters by config ID.
type mockFactory struct {
	adapters map[string]*mockAdapter
	err      error
}

var _ driven.AdapterFactory = (*mockFactory)(nil)

func (f *mockFactory) New(cfg domain.PlatformConfig) (driven.PlatformAdapter, error) {
	if f.err != nil {
		return nil, f.err
	}
	if a, ok := f.adapters[cfg.ID]; ok {
		return a, nil
	}
	return &mockAdapter{platform: cfg.Platform, configID: cfg.ID}, nil
}
