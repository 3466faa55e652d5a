package file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
)

// fakeRegistry records which configs the watcher loads and unloads.
type fakeRegistry struct {
	active   []string
	reloaded []string
	unloaded []string
}

func (f *fakeRegistry) Load(context.Context, domain.PlatformConfig) error { return nil }

func (f *fakeRegistry) Unload(id string) error {
	f.unloaded = append(f.unloaded, id)
	return nil
}

func (f *fakeRegistry) Reload(_ context.Context, cfg domain.PlatformConfig) error {
	f.reloaded = append(f.reloaded, cfg.ID)
	return nil
}

func (f *fakeRegistry) Resolve(string) (driven.PlatformAdapter, bool) { return nil, false }
func (f *fakeRegistry) ResolveAll(string) []driven.PlatformAdapter    { return nil }
func (f *fakeRegistry) ListActive() []string                          { return f.active }
func (f *fakeRegistry) ValidateAll(context.Context) map[string]bool   { return nil }
func (f *fakeRegistry) Cleanup() error                                { return nil }

func TestWatcher_ReloadSyncsRegistry(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(domain.PlatformConfig{
		ID:       "lark-a",
		Platform: domain.PlatformLark,
		Accounts: []string{"tok1"},
		Enabled:  true,
	}))
	require.NoError(t, store.Save(domain.PlatformConfig{
		ID:       "slack-b",
		Platform: domain.PlatformSlack,
		Accounts: []string{"tok2"},
		Enabled:  false,
	}))

	// The registry still holds an adapter whose config was deleted.
	reg := &fakeRegistry{active: []string{"lark-a", "gmail-gone"}}
	w, err := NewWatcher(store, reg)
	require.NoError(t, err)
	t.Cleanup(func() { w.fsw.Close() })

	w.reload(context.Background())

	assert.Equal(t, []string{"lark-a"}, reg.reloaded, "only enabled configs are reloaded")
	assert.Equal(t, []string{"gmail-gone"}, reg.unloaded, "adapters without a config are unloaded")
}

func TestWatcher_ReloadToleratesMissingFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	reg := &fakeRegistry{}
	w, err := NewWatcher(store, reg)
	require.NoError(t, err)
	t.Cleanup(func() { w.fsw.Close() })

	w.reload(context.Background())

	assert.Empty(t, reg.reloaded)
	assert.Empty(t, reg.unloaded)
}
