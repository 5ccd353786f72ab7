package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/berfenger/aurum2mqtt/internal/config"
	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]port.EntryStore {
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "entries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]port.EntryStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestEntryStore(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {

			assert := assert.New(t)
			ctx := context.Background()

			first := domain.NewConfigEntry("Home", "192.168.1.20", "1,7", domain.EntryOptions{})
			second := domain.NewConfigEntry("", "meter.local", "", domain.EntryOptions{ScanInterval: 30})
			second.CreatedAt = first.CreatedAt.Add(time.Second)

			require.NoError(t, s.Save(ctx, second))
			require.NoError(t, s.Save(ctx, first))

			entries, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(first.Id, entries[0].Id, "creation order")
			assert.Equal(second.Id, entries[1].Id)

			got, err := s.Get(ctx, first.Id)
			require.NoError(t, err)
			assert.Equal("Home", got.Title)
			assert.Equal("192.168.1.20", got.Host)
			assert.Equal("1,7", got.Selection)
			assert.EqualValues(10, got.Options.ScanInterval)
			assert.True(first.CreatedAt.Equal(got.CreatedAt))

			// options update
			first.Options.ScanInterval = 5
			require.NoError(t, s.Save(ctx, first))
			got, err = s.Get(ctx, first.Id)
			require.NoError(t, err)
			assert.EqualValues(5, got.Options.ScanInterval)

			require.NoError(t, s.Delete(ctx, first.Id))
			_, err = s.Get(ctx, first.Id)
			assert.ErrorIs(err, ErrEntryNotFound)
			assert.ErrorIs(err, domain.ErrUnknownEntry)
			assert.ErrorIs(s.Delete(ctx, first.Id), ErrEntryNotFound)

			entries, err = s.List(ctx)
			require.NoError(t, err)
			assert.Len(entries, 1)
		})
	}
}

func TestSQLiteStoreReopen(t *testing.T) {

	path := filepath.Join(t.TempDir(), "entries.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	entry := domain.NewConfigEntry("Home", "meter.local", "", domain.EntryOptions{})
	require.NoError(t, s.Save(context.Background(), entry))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.Id, entries[0].Id)
}

func TestNew(t *testing.T) {

	s, err := New(config.StoreConfig{})
	require.NoError(t, err)
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)
}
