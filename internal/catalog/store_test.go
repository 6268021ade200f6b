package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	stores := map[string]Store{}
	for _, opts := range []Options{
		{Backend: "memory"},
		{Backend: "badger", Path: filepath.Join(dir, "badger")},
		{Backend: "sqlite", Path: filepath.Join(dir, "sqlite", "catalog.db")},
	} {
		s, err := Open(opts)
		require.NoError(t, err, "open %s", opts.Backend)
		t.Cleanup(func() { _ = s.Close() })
		stores[opts.Backend] = s
	}
	return stores
}

func sortByIdentifier(recs []Recording) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Identifier < recs[j].Identifier })
}

var created = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestStore_CreateAndRetrieve(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := NewRecording("/home/u/Documents/Claudio", "2024-01-01T00:00:00Z", created)

			require.NoError(t, s.Create(ctx, rec))

			all, err := s.Retrieve(ctx, nil)
			require.NoError(t, err)
			require.Len(t, all, 1)
			if diff := cmp.Diff(rec, all[0]); diff != "" {
				t.Errorf("retrieved recording mismatch (-want +got):\n%s", diff)
			}

			got, err := s.Get(ctx, "2024-01-01T00:00:00Z")
			require.NoError(t, err)
			require.Equal(t, "2024-01-01T00:00:00Z", got.Path)
		})
	}
}

func TestStore_DuplicateIdentifierFails(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := NewRecording("/a", "clip", created)
			second := NewRecording("/b", "clip", created.Add(time.Hour))

			require.NoError(t, s.Create(ctx, first))
			err := s.Create(ctx, second)
			require.ErrorIs(t, err, ErrDuplicate)

			// The original entry is left untouched
			all, err := s.Retrieve(ctx, nil)
			require.NoError(t, err)
			require.Len(t, all, 1)
			require.Equal(t, "/a", all[0].Directory)
		})
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, NewRecording("/d", "one", created)))
			require.NoError(t, s.Create(ctx, NewRecording("/d", "two", created)))

			require.NoError(t, s.Delete(ctx, "one"))
			require.NoError(t, s.Delete(ctx, "one"))
			require.NoError(t, s.Delete(ctx, "never-existed"))
			require.NoError(t, s.Delete(ctx))

			all, err := s.Retrieve(ctx, nil)
			require.NoError(t, err)
			require.Len(t, all, 1)
			require.Equal(t, "two", all[0].Identifier)

			_, err = s.Get(ctx, "one")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_DeleteMany(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"a", "b", "c"} {
				require.NoError(t, s.Create(ctx, NewRecording("/d", id, created)))
			}

			require.NoError(t, s.Delete(ctx, "a", "c"))

			all, err := s.Retrieve(ctx, nil)
			require.NoError(t, err)
			require.Len(t, all, 1)
			require.Equal(t, "b", all[0].Identifier)
		})
	}
}

func TestStore_RetrieveWithFilter(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, NewRecording("/music", "a", created)))
			require.NoError(t, s.Create(ctx, NewRecording("/music/", "b", created)))
			require.NoError(t, s.Create(ctx, NewRecording("/voice", "c", created)))

			got, err := s.Retrieve(ctx, InDirectory("/music"))
			require.NoError(t, err)
			sortByIdentifier(got)
			require.Len(t, got, 2)
			require.Equal(t, "a", got[0].Identifier)
			require.Equal(t, "b", got[1].Identifier)
		})
	}
}

func TestStore_WriteIsAtomic(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			boom := errors.New("boom")

			err := s.Write(ctx, func(tx Tx) error {
				if err := tx.Create(NewRecording("/d", "partial", created)); err != nil {
					return err
				}
				return boom
			})
			require.ErrorIs(t, err, boom)

			all, err := s.Retrieve(ctx, nil)
			require.NoError(t, err)
			require.Empty(t, all)
		})
	}
}

func TestStore_WriteSeesOwnChanges(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := s.Write(ctx, func(tx Tx) error {
				if err := tx.Create(NewRecording("/d", "x", created)); err != nil {
					return err
				}
				if _, err := tx.Get("x"); err != nil {
					return err
				}
				return tx.Create(NewRecording("/d", "x", created))
			})
			require.ErrorIs(t, err, ErrDuplicate)
		})
	}
}

func TestStore_RejectsInvalidRecording(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.Error(t, s.Create(context.Background(), Recording{Path: "x"}))
			require.Error(t, s.Create(context.Background(), Recording{Identifier: "x"}))
		})
	}
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalog")
	ctx := context.Background()

	s, err := OpenBadger(dir)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, NewRecording("/d", "kept", created)))
	require.NoError(t, s.Close())

	s, err = OpenBadger(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "kept")
	require.NoError(t, err)
	require.True(t, got.CreatedAt.Equal(created))
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, NewRecording("/d", "kept", created)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "kept")
	require.NoError(t, err)
	require.True(t, got.CreatedAt.Equal(created))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "realm"})
	require.Error(t, err)
}

func TestOpen_BadgerWithoutPath(t *testing.T) {
	_, err := Open(Options{Backend: "badger"})
	require.Error(t, err)
}

func TestRecording_FullPath(t *testing.T) {
	rec := NewRecording("/home/u/Documents/Claudio", "2024-01-01T00:00:00Z", created)
	require.Equal(t, "/home/u/Documents/Claudio/2024-01-01T00:00:00Z", rec.FullPath())
	require.Equal(t, rec.Path, rec.Identifier)
}
