package challenge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	nonceSize       = 32
	minSecretLength = 16
)

var (
	// ErrTokenInvalid indicates a malformed token or a MAC that does not
	// verify under any accepted key.
	ErrTokenInvalid = errors.New("challenge token invalid")
	// ErrSubjectMismatch indicates the token was issued for a different subject.
	ErrSubjectMismatch = errors.New("challenge subject mismatch")
	// ErrChallengeMismatch indicates the presented challenge value does not
	// match the one bound into the token.
	ErrChallengeMismatch = errors.New("challenge value mismatch")
	// ErrExpired indicates the challenge TTL has elapsed.
	ErrExpired = errors.New("challenge expired")
)

// tokenPayload is the authenticated wire payload. Field names are part of the
// token format: base64url(payload-json) + "." + base64url(mac).
type tokenPayload struct {
	Subject   string `json:"u"`
	Challenge string `json:"c"`
	ExpiresAt int64  `json:"e"` // unix milliseconds
}

// Issued is the result of one challenge issuance.
type Issued struct {
	Challenge string
	Token     string
	ExpiresAt time.Time
}

// Codec mints and verifies stateless challenge tokens.
//
// Codec instances are safe for concurrent use. The secret may be rotated by
// constructing a new Codec with the previous secret supplied as a retired key;
// tokens minted under retired keys keep verifying until their TTL elapses.
type Codec struct {
	secret  []byte
	retired [][]byte
	now     func() time.Time
}

// NewCodec creates a Codec signing with secret and additionally accepting
// tokens signed with any of the retired secrets.
func NewCodec(secret []byte, retired ...[]byte) (*Codec, error) {
	if len(secret) < minSecretLength {
		return nil, errors.New("challenge secret too short")
	}
	keys := make([][]byte, 0, len(retired))
	for _, k := range retired {
		if len(k) < minSecretLength {
			return nil, errors.New("retired challenge secret too short")
		}
		keys = append(keys, append([]byte(nil), k...))
	}

	return &Codec{
		secret:  append([]byte(nil), secret...),
		retired: keys,
		now:     time.Now,
	}, nil
}

// Issue generates a fresh random challenge for subjectID and returns it with
// the token the client must present back on verification.
func (c *Codec) Issue(subjectID string, ttl time.Duration) (Issued, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Issued{}, err
	}

	expiresAt := c.now().Add(ttl)
	payload, err := json.Marshal(tokenPayload{
		Subject:   subjectID,
		Challenge: base64.RawURLEncoding.EncodeToString(nonce[:]),
		ExpiresAt: expiresAt.UnixMilli(),
	})
	if err != nil {
		return Issued{}, err
	}

	mac := computeMAC(c.secret, payload)
	token := base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(mac)

	return Issued{
		Challenge: base64.RawURLEncoding.EncodeToString(nonce[:]),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks token against subjectID and the presented challenge value.
// The MAC comparison is constant-time and runs before any payload field is
// trusted.
func (c *Codec) Verify(subjectID, challengeValue, token string) error {
	dot := strings.IndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return ErrTokenInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return ErrTokenInvalid
	}
	mac, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return ErrTokenInvalid
	}

	if !hmac.Equal(mac, computeMAC(c.secret, payload)) {
		verified := false
		for _, k := range c.retired {
			if hmac.Equal(mac, computeMAC(k, payload)) {
				verified = true
				break
			}
		}
		if !verified {
			return ErrTokenInvalid
		}
	}

	var decoded tokenPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return ErrTokenInvalid
	}
	if decoded.Subject != subjectID {
		return ErrSubjectMismatch
	}
	if subtle.ConstantTimeCompare([]byte(decoded.Challenge), []byte(challengeValue)) != 1 {
		return ErrChallengeMismatch
	}
	if c.now().UnixMilli() > decoded.ExpiresAt {
		return ErrExpired
	}

	return nil
}

// TokenDigest returns the SHA-256 digest of the full token, base64url-encoded.
// Used as the consumption-tracking key for stateless tokens.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func computeMAC(key, payload []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(payload)
	return h.Sum(nil)
}
