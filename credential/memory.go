package credential

import (
	"context"
	"sync"
)

// MemoryBackend keeps credential sets in process-lifetime maps. Drop-in
// substitute for [RedisBackend] minus durability: tests and single-node
// deployments without Redis use it. Explicit state, never a hidden
// singleton; call Reset for test isolation.
type MemoryBackend struct {
	mu       sync.Mutex
	subjects map[string][]Record
	index    map[string]string
}

// NewMemoryBackend creates an empty [MemoryBackend].
func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{}
	b.reset()
	return b
}

func (b *MemoryBackend) reset() {
	b.subjects = make(map[string][]Record)
	b.index = make(map[string]string)
}

// Reset clears all stored credentials and index entries.
func (b *MemoryBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

// LoadSubject returns a copy of the subject's credential set.
func (b *MemoryBackend) LoadSubject(_ context.Context, subjectID string) ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := b.subjects[subjectID]
	records := make([]Record, len(stored))
	copy(records, stored)
	return records, nil
}

// UpdateSubject applies mutate while holding the backend lock, so the
// read-modify-write is a single atomic unit.
func (b *MemoryBackend) UpdateSubject(_ context.Context, subjectID string, mutate func([]Record) ([]Record, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := b.subjects[subjectID]
	working := make([]Record, len(stored))
	copy(working, stored)

	records, err := mutate(working)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		delete(b.subjects, subjectID)
		return nil
	}
	b.subjects[subjectID] = records
	return nil
}

// SubjectOf resolves the owning subject of a credential ID.
func (b *MemoryBackend) SubjectOf(_ context.Context, credentialID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subjectID, ok := b.index[credentialID]
	if !ok {
		return "", ErrNotFound
	}
	return subjectID, nil
}

// BindCredential claims the credential ID; the first caller wins.
func (b *MemoryBackend) BindCredential(_ context.Context, credentialID, subjectID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.index[credentialID]; exists {
		return ErrDuplicate
	}
	b.index[credentialID] = subjectID
	return nil
}

// UnbindCredential releases the credential ID.
func (b *MemoryBackend) UnbindCredential(_ context.Context, credentialID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.index, credentialID)
	return nil
}
