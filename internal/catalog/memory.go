package catalog

import (
	"context"
	"sync"
)

// Memory is an in-process Store, used for tests and throwaway sessions.
type Memory struct {
	mu         sync.RWMutex
	recordings map[string]Recording
}

func NewMemory() *Memory {
	return &Memory{recordings: make(map[string]Recording)}
}

func (m *Memory) Create(ctx context.Context, rec Recording) error {
	return create(ctx, m, rec)
}

// Write applies fn to a copy and swaps it in only when fn succeeds.
func (m *Memory) Write(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[string]Recording, len(m.recordings))
	for k, v := range m.recordings {
		staged[k] = v
	}
	if err := fn(memoryTx(staged)); err != nil {
		return err
	}
	m.recordings = staged
	return nil
}

func (m *Memory) Retrieve(ctx context.Context, filter Filter) ([]Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Recording
	for _, rec := range m.recordings {
		if matches(filter, rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, identifier string) (Recording, error) {
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return memoryTx(m.recordings).Get(identifier)
}

func (m *Memory) Delete(ctx context.Context, identifiers ...string) error {
	return remove(ctx, m, identifiers)
}

func (m *Memory) Close() error { return nil }

type memoryTx map[string]Recording

func (tx memoryTx) Create(rec Recording) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if _, exists := tx[rec.Identifier]; exists {
		return ErrDuplicate
	}
	tx[rec.Identifier] = rec
	return nil
}

func (tx memoryTx) Get(identifier string) (Recording, error) {
	rec, ok := tx[identifier]
	if !ok {
		return Recording{}, ErrNotFound
	}
	return rec, nil
}

func (tx memoryTx) Delete(identifier string) error {
	delete(tx, identifier)
	return nil
}
