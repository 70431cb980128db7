package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/jarvis/internal/config"
	"github.com/nadzzz/jarvis/internal/store"
)

func open(t *testing.T, path string) *Backend {
	t.Helper()
	b, err := New(config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	return b
}

func TestLoadSave(t *testing.T) {
	b := open(t, filepath.Join(t.TempDir(), "jarvis.db"))
	defer b.Close()
	ctx := context.Background()

	_, ok, err := b.Load(ctx, store.KeyTheme)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Save(ctx, store.KeyTheme, "light"))
	require.NoError(t, b.Save(ctx, store.KeyTheme, "dark"))

	v, ok, err := b.Load(ctx, store.KeyTheme)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jarvis.db")

	b := open(t, path)
	kv := store.NewKV(b, nil)
	kv.Set(store.KeyUserName, "Pepper")
	kv.SetList(store.KeyShoppingList, []string{"milk", "coffee"})
	require.NoError(t, b.Close())

	b = open(t, path)
	defer b.Close()
	kv = store.NewKV(b, nil)
	assert.Equal(t, "Pepper", kv.Get(store.KeyUserName, "Sir"))
	assert.Equal(t, []string{"milk", "coffee"}, kv.GetList(store.KeyShoppingList))
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := New(config.SQLiteConfig{})
	assert.Error(t, err)
}

func TestClosedBackendFallsBack(t *testing.T) {
	b := open(t, filepath.Join(t.TempDir(), "jarvis.db"))
	require.NoError(t, b.Close())

	kv := store.NewKV(b, nil)
	assert.Equal(t, "jarvis", kv.Get(store.KeyPersonality, "jarvis"))
}
