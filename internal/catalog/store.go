// Package catalog persists the list of recordings made so far.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

var (
	// ErrDuplicate is returned when creating a recording whose identifier
	// already exists. Existing entries are never overwritten.
	ErrDuplicate = errors.New("recording already exists")
	// ErrNotFound is returned by Get for an unknown identifier.
	ErrNotFound = errors.New("recording not found")
)

// Recording describes one captured audio clip.
type Recording struct {
	Identifier string    `json:"identifier" yaml:"identifier"`
	Directory  string    `json:"directory" yaml:"directory"`
	Path       string    `json:"path" yaml:"path"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// NewRecording builds the catalog entry for a file written to directory.
// The file name doubles as the identifier.
func NewRecording(directory, path string, createdAt time.Time) Recording {
	return Recording{
		Identifier: path,
		Directory:  directory,
		Path:       path,
		CreatedAt:  createdAt.UTC(),
	}
}

// FullPath joins Directory and Path.
func (r Recording) FullPath() string {
	return filepath.Join(r.Directory, r.Path)
}

func (r Recording) validate() error {
	if r.Identifier == "" {
		return fmt.Errorf("recording identifier is required")
	}
	if r.Path == "" {
		return fmt.Errorf("recording %s: path is required", r.Identifier)
	}
	return nil
}

// Filter narrows Retrieve results. A nil Filter matches everything.
type Filter func(Recording) bool

// InDirectory matches recordings stored in dir.
func InDirectory(dir string) Filter {
	clean := filepath.Clean(dir)
	return func(r Recording) bool {
		return filepath.Clean(r.Directory) == clean
	}
}

// Tx is the view of the store inside a Write transaction.
type Tx interface {
	Create(rec Recording) error
	Get(identifier string) (Recording, error)
	Delete(identifier string) error
}

// Store is the recording catalog. Implementations are safe for concurrent
// use; Retrieve order is unspecified.
type Store interface {
	// Create adds rec, failing with ErrDuplicate if its identifier exists.
	Create(ctx context.Context, rec Recording) error
	// Write runs fn in a transaction. If fn returns an error nothing is
	// applied.
	Write(ctx context.Context, fn func(tx Tx) error) error
	// Retrieve returns every recording matching filter.
	Retrieve(ctx context.Context, filter Filter) ([]Recording, error)
	// Get returns one recording or ErrNotFound.
	Get(ctx context.Context, identifier string) (Recording, error)
	// Delete removes the given identifiers. Unknown identifiers are ignored.
	Delete(ctx context.Context, identifiers ...string) error
	Close() error
}

// Options selects and locates a backend.
type Options struct {
	Backend string // "badger", "sqlite", "memory"
	Path    string
}

// Open creates a Store based on the backend configuration.
func Open(opts Options) (Store, error) {
	var (
		store Store
		err   error
	)
	switch opts.Backend {
	case "badger", "":
		store, err = OpenBadger(opts.Path)
	case "sqlite":
		store, err = OpenSQLite(opts.Path)
	case "memory":
		store = NewMemory()
	default:
		return nil, fmt.Errorf("unknown catalog backend: %s", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s catalog at %s: %w", opts.Backend, opts.Path, err)
	}

	slog.Debug("Catalog store opened", "backend", opts.Backend, "path", opts.Path)
	return store, nil
}

// create and remove are shared helpers so every backend runs Create and
// Delete through its own Write.
func create(ctx context.Context, s Store, rec Recording) error {
	if err := rec.validate(); err != nil {
		return err
	}
	return s.Write(ctx, func(tx Tx) error {
		return tx.Create(rec)
	})
}

func remove(ctx context.Context, s Store, identifiers []string) error {
	if len(identifiers) == 0 {
		return nil
	}
	return s.Write(ctx, func(tx Tx) error {
		for _, id := range identifiers {
			if err := tx.Delete(id); err != nil {
				return err
			}
		}
		return nil
	})
}

func matches(filter Filter, rec Recording) bool {
	return filter == nil || filter(rec)
}
