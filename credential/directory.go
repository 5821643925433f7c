package credential

import (
	"context"
	"fmt"
	"sync"
)

// DirectoryService is the external user directory consumed by
// [DirectoryBackend]. The credential document rides inside the directory's
// per-user blob storage. GetBlob returns nil for users with no stored blob.
type DirectoryService interface {
	FindOrCreate(ctx context.Context, subjectID string) (userHandle string, err error)
	GetBlob(ctx context.Context, userHandle string) ([]byte, error)
	PutBlob(ctx context.Context, userHandle string, blob []byte) error
}

// DirectoryBackend persists credential sets through an external user
// directory. The directory offers plain get/put with no conditional writes,
// so read-modify-write cycles serialize on per-subject mutexes; the
// linearizability guarantee is process-local. The credential index is kept
// alongside in memory and rebuilt lazily from subject loads.
type DirectoryBackend struct {
	directory DirectoryService

	mu      sync.Mutex
	handles map[string]string      // subjectID -> userHandle
	locks   map[string]*sync.Mutex // subjectID -> write lock
	index   map[string]string      // credentialID -> subjectID
}

// NewDirectoryBackend creates a [DirectoryBackend] over the given directory.
func NewDirectoryBackend(directory DirectoryService) *DirectoryBackend {
	return &DirectoryBackend{
		directory: directory,
		handles:   make(map[string]string),
		locks:     make(map[string]*sync.Mutex),
		index:     make(map[string]string),
	}
}

func (b *DirectoryBackend) subjectLock(subjectID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()

	lock, ok := b.locks[subjectID]
	if !ok {
		lock = &sync.Mutex{}
		b.locks[subjectID] = lock
	}
	return lock
}

func (b *DirectoryBackend) handle(ctx context.Context, subjectID string) (string, error) {
	b.mu.Lock()
	cached, ok := b.handles[subjectID]
	b.mu.Unlock()
	if ok {
		return cached, nil
	}

	userHandle, err := b.directory.FindOrCreate(ctx, subjectID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	b.mu.Lock()
	b.handles[subjectID] = userHandle
	b.mu.Unlock()
	return userHandle, nil
}

func (b *DirectoryBackend) load(ctx context.Context, subjectID string) ([]Record, error) {
	userHandle, err := b.handle(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	blob, err := b.directory.GetBlob(ctx, userHandle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Absent and malformed blobs both decode to an empty set.
	records := decodeRecords(blob)
	b.reindex(subjectID, records)
	return records, nil
}

func (b *DirectoryBackend) reindex(subjectID string, records []Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, record := range records {
		b.index[record.CredentialID] = subjectID
	}
}

// LoadSubject returns the subject's credential set from their directory blob.
func (b *DirectoryBackend) LoadSubject(ctx context.Context, subjectID string) ([]Record, error) {
	return b.load(ctx, subjectID)
}

// UpdateSubject applies mutate under the subject's write lock and stores the
// resulting document back into the directory.
func (b *DirectoryBackend) UpdateSubject(ctx context.Context, subjectID string, mutate func([]Record) ([]Record, error)) error {
	lock := b.subjectLock(subjectID)
	lock.Lock()
	defer lock.Unlock()

	before, err := b.load(ctx, subjectID)
	if err != nil {
		return err
	}

	records, err := mutate(before)
	if err != nil {
		return err
	}

	blob, err := encodeRecords(records)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	userHandle, err := b.handle(ctx, subjectID)
	if err != nil {
		return err
	}
	if err := b.directory.PutBlob(ctx, userHandle, blob); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	b.reindex(subjectID, records)
	return nil
}

// SubjectOf resolves a credential ID through the in-memory index.
func (b *DirectoryBackend) SubjectOf(_ context.Context, credentialID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subjectID, ok := b.index[credentialID]
	if !ok {
		return "", ErrNotFound
	}
	return subjectID, nil
}

// BindCredential claims the credential ID in the in-memory index.
func (b *DirectoryBackend) BindCredential(_ context.Context, credentialID, subjectID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.index[credentialID]; exists {
		return ErrDuplicate
	}
	b.index[credentialID] = subjectID
	return nil
}

// UnbindCredential releases the credential ID from the in-memory index.
func (b *DirectoryBackend) UnbindCredential(_ context.Context, credentialID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.index, credentialID)
	return nil
}
