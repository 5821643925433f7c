package credential

import (
	"encoding/json"
	"errors"
)

// Status describes the lifecycle state of a stored credential.
type Status string

const (
	// StatusActive marks a credential usable for authentication.
	StatusActive Status = "active"
	// StatusDisabled marks a credential the owner switched off. Reversible.
	StatusDisabled Status = "disabled"
	// StatusCompromised marks a credential flagged by clone detection.
	StatusCompromised Status = "compromised"
)

var (
	// ErrNotFound indicates no credential exists for the given ID.
	ErrNotFound = errors.New("credential not found")
	// ErrDuplicate indicates the credential ID is already registered.
	ErrDuplicate = errors.New("credential already registered")
	// ErrCounterRegression indicates the authenticator reported a signature
	// counter below the stored value. The stored value is preserved.
	ErrCounterRegression = errors.New("signature counter regression")
	// ErrUnavailable indicates the persistence backend is unreachable or
	// could not complete the operation atomically.
	ErrUnavailable = errors.New("credential backend unavailable")
)

// Record is the persisted form of one authenticator credential.
// Timestamps are Unix milliseconds.
type Record struct {
	CredentialID string   `json:"credentialId"`
	PublicKey    string   `json:"publicKey"`
	Counter      uint32   `json:"counter"`
	Transports   []string `json:"transports,omitempty"`
	Status       Status   `json:"status"`
	DisplayName  string   `json:"displayName,omitempty"`
	CreatedAt    int64    `json:"createdAt"`
	LastUsedAt   int64    `json:"lastUsedAt,omitempty"`
}

func encodeRecords(records []Record) ([]byte, error) {
	return json.Marshal(records)
}

// decodeRecords tolerates absent or malformed blobs: both decode to an empty
// set rather than an error, so a corrupted document never bricks a subject.
func decodeRecords(data []byte) []Record {
	if len(data) == 0 {
		return nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil
	}
	return records
}
