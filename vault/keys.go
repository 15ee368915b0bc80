package vault

import (
	"crypto/subtle"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/ledgerkeep/ledgerkeep/internal/util"
)

const (
	// KeySize is the length of a derived user key in bytes.
	KeySize = util.HKDFKeyLength
	// MinMasterSecretLength is the shortest master secret New accepts.
	MinMasterSecretLength = 32

	userKeyLabel   = "ledgerkeep/user-key/v1"
	recordKeyLabel = "ledgerkeep/record-key/v1"
)

// Identity is the pair of identifiers a user key is bound to.
type Identity struct {
	UserID string
	// SessionID is optional; when empty the user id stands in for it so that
	// credentials stay readable across logins.
	SessionID string
}

// Session returns the session identifier used for key derivation.
func (id Identity) Session() string {
	if id.SessionID == "" {
		return id.UserID
	}
	return id.SessionID
}

// Key is a derived per-user key held in a locked, guarded buffer.
// Call Destroy when done to wipe it.
type Key struct {
	buf *memguard.LockedBuffer
}

// Bytes exposes the raw key material. The slice is only valid until Destroy.
func (k *Key) Bytes() []byte {
	return k.buf.Bytes()
}

// Equal reports whether two keys hold the same material, in constant time.
func (k *Key) Equal(other *Key) bool {
	return subtle.ConstantTimeCompare(k.Bytes(), other.Bytes()) == 1
}

// Destroy wipes the key material.
func (k *Key) Destroy() {
	if k != nil && k.buf != nil {
		k.buf.Destroy()
	}
}

// DeriveKey computes the user key for (userID, sessionID) from the master
// secret using HKDF-SHA256. The master secret is checked before any other
// work so that a misconfigured server fails without touching the identifiers.
func DeriveKey(userID, sessionID string, masterSecret []byte) (*Key, error) {
	if len(masterSecret) == 0 {
		return nil, fmt.Errorf("%w: master secret is not set", ErrConfiguration)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", ErrInvalidIdentity)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id must not be empty", ErrInvalidIdentity)
	}

	info := util.LengthPrefixed(userKeyLabel, util.Normalize(userID), util.Normalize(sessionID))
	raw, err := util.HKDF(masterSecret, nil, info)
	if err != nil {
		return nil, fmt.Errorf("deriving user key: %w", err)
	}
	return &Key{buf: memguard.NewBufferFromBytes(raw)}, nil
}

func deriveRecordKey(key *Key, salt []byte) ([]byte, error) {
	if key == nil || len(key.Bytes()) != KeySize {
		return nil, fmt.Errorf("%w: user key is not usable", ErrInvalidIdentity)
	}
	recordKey, err := util.HKDF(key.Bytes(), salt, []byte(recordKeyLabel))
	if err != nil {
		return nil, fmt.Errorf("deriving record key: %w", err)
	}
	return recordKey, nil
}
