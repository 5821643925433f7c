package credential

import (
	"context"
	"time"
)

// Backend abstracts the persistence layer behind the [Repository].
//
// Implementations guarantee that UpdateSubject applies its mutate callback
// atomically with respect to concurrent UpdateSubject calls for the same
// subject, and that BindCredential is a global compare-and-set (first caller
// wins, later callers get ErrDuplicate).
type Backend interface {
	// LoadSubject returns the subject's credential set. Absent subjects
	// return an empty slice, never an error.
	LoadSubject(ctx context.Context, subjectID string) ([]Record, error)

	// UpdateSubject applies mutate to the subject's credential set in one
	// atomic read-modify-write. Errors returned by mutate abort the write
	// and propagate unchanged.
	UpdateSubject(ctx context.Context, subjectID string, mutate func([]Record) ([]Record, error)) error

	// SubjectOf resolves the owning subject of a credential ID, or ErrNotFound.
	SubjectOf(ctx context.Context, credentialID string) (string, error)

	// BindCredential claims the credential ID for the subject. Returns
	// ErrDuplicate when the ID is already bound.
	BindCredential(ctx context.Context, credentialID, subjectID string) error

	// UnbindCredential releases the credential ID. Unbinding an unknown ID
	// is not an error.
	UnbindCredential(ctx context.Context, credentialID string) error
}

// Repository implements credential CRUD and counter clone detection on top
// of a [Backend].
type Repository struct {
	backend Backend
	history *counterHistory
	now     func() time.Time
}

// NewRepository creates a [Repository] over the given backend.
func NewRepository(backend Backend) *Repository {
	return &Repository{
		backend: backend,
		history: newCounterHistory(),
		now:     time.Now,
	}
}

// Create registers a new credential for the subject. Fails with
// [ErrDuplicate] when the credential ID exists anywhere in the system;
// authenticator handles are globally unique, so the check is global, not
// per-subject.
func (r *Repository) Create(ctx context.Context, subjectID string, record Record) error {
	if record.Status == "" {
		record.Status = StatusActive
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = r.now().UnixMilli()
	}

	if err := r.backend.BindCredential(ctx, record.CredentialID, subjectID); err != nil {
		return err
	}

	err := r.backend.UpdateSubject(ctx, subjectID, func(records []Record) ([]Record, error) {
		for _, existing := range records {
			if existing.CredentialID == record.CredentialID {
				return nil, ErrDuplicate
			}
		}
		return append(records, record), nil
	})
	if err != nil {
		// The bind claimed the ID but the set write failed; release so the
		// authenticator can retry registration.
		_ = r.backend.UnbindCredential(ctx, record.CredentialID)
		return err
	}

	r.history.record(record.CredentialID, record.Counter, r.now())
	return nil
}

// ListBySubject returns all of the subject's credentials regardless of
// status. Callers filter; authentication offers only StatusActive entries.
func (r *Repository) ListBySubject(ctx context.Context, subjectID string) ([]Record, error) {
	return r.backend.LoadSubject(ctx, subjectID)
}

// FindByCredentialID resolves a credential globally, without knowing the
// subject up front. Returns the owning subject alongside the record.
func (r *Repository) FindByCredentialID(ctx context.Context, credentialID string) (string, Record, error) {
	subjectID, err := r.backend.SubjectOf(ctx, credentialID)
	if err != nil {
		return "", Record{}, err
	}

	records, err := r.backend.LoadSubject(ctx, subjectID)
	if err != nil {
		return "", Record{}, err
	}
	for _, record := range records {
		if record.CredentialID == credentialID {
			return subjectID, record, nil
		}
	}

	// Index points at a subject whose set no longer holds the record.
	return "", Record{}, ErrNotFound
}

// UpdateCounter applies the authenticator's reported counter. A report below
// the stored value is a clone signal: the call fails with
// [ErrCounterRegression] and the stored counter keeps its last known-good
// value as evidence. Equal or greater reports update the counter and
// lastUsedAt. The read-modify-write is linearizable per credential.
func (r *Repository) UpdateCounter(ctx context.Context, credentialID string, reported uint32) (Record, error) {
	subjectID, err := r.backend.SubjectOf(ctx, credentialID)
	if err != nil {
		return Record{}, err
	}

	var updated Record
	err = r.backend.UpdateSubject(ctx, subjectID, func(records []Record) ([]Record, error) {
		for i := range records {
			if records[i].CredentialID != credentialID {
				continue
			}
			if reported < records[i].Counter {
				return nil, ErrCounterRegression
			}
			records[i].Counter = reported
			records[i].LastUsedAt = r.now().UnixMilli()
			updated = records[i]
			return records, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return Record{}, err
	}

	r.history.record(credentialID, reported, r.now())
	return updated, nil
}

// SetStatus transitions a credential's lifecycle state.
func (r *Repository) SetStatus(ctx context.Context, credentialID string, status Status) error {
	return r.mutateOne(ctx, credentialID, func(record *Record) {
		record.Status = status
	})
}

// Rename updates a credential's display name.
func (r *Repository) Rename(ctx context.Context, credentialID, displayName string) error {
	return r.mutateOne(ctx, credentialID, func(record *Record) {
		record.DisplayName = displayName
	})
}

// Delete removes a credential permanently. Not recoverable; status
// transitions are the reversible alternative.
func (r *Repository) Delete(ctx context.Context, credentialID string) error {
	subjectID, err := r.backend.SubjectOf(ctx, credentialID)
	if err != nil {
		return err
	}

	err = r.backend.UpdateSubject(ctx, subjectID, func(records []Record) ([]Record, error) {
		for i := range records {
			if records[i].CredentialID == credentialID {
				return append(records[:i], records[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return err
	}

	if err := r.backend.UnbindCredential(ctx, credentialID); err != nil {
		return err
	}
	r.history.drop(credentialID)
	return nil
}

// History returns the bounded counter trail observed for a credential.
// Forensic only; never consulted for authorization.
func (r *Repository) History(credentialID string) []HistoryEntry {
	return r.history.snapshot(credentialID)
}

func (r *Repository) mutateOne(ctx context.Context, credentialID string, apply func(*Record)) error {
	subjectID, err := r.backend.SubjectOf(ctx, credentialID)
	if err != nil {
		return err
	}

	return r.backend.UpdateSubject(ctx, subjectID, func(records []Record) ([]Record, error) {
		for i := range records {
			if records[i].CredentialID == credentialID {
				apply(&records[i])
				return records, nil
			}
		}
		return nil, ErrNotFound
	})
}
