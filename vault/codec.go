// Package vault seals third-party credentials for storage at rest.
//
// Every user gets a key derived from the server master secret and the user's
// identity; the key itself is never stored. Each sealed value carries a fresh
// salt, from which a one-off record key is derived, and a fresh AES-GCM nonce.
package vault

import (
	"fmt"
	"unicode/utf8"

	"github.com/awnumar/memguard"

	"github.com/ledgerkeep/ledgerkeep/internal/util"
)

// MaxPlaintextLength is the longest secret, in characters, that can be sealed.
const MaxPlaintextLength = 1000

// Encrypt seals plaintext under key.
func Encrypt(plaintext string, key *Key) (*Envelope, error) {
	return EncryptWithAAD(plaintext, key, nil)
}

// EncryptWithAAD seals plaintext under key and binds aad to the envelope;
// the same aad must be presented to open it.
func EncryptWithAAD(plaintext string, key *Key, aad []byte) (*Envelope, error) {
	if err := validatePlaintext(plaintext); err != nil {
		return nil, err
	}

	salt, err := util.RandomBytes(SaltSize)
	if err != nil {
		return nil, err
	}
	iv, err := util.RandomBytes(IVSize)
	if err != nil {
		return nil, err
	}

	recordKey, err := deriveRecordKey(key, salt)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(recordKey)

	ciphertext, tag, err := util.SealAESGCM([]byte(plaintext), recordKey, iv, aad)
	if err != nil {
		return nil, fmt.Errorf("sealing credential: %w", err)
	}

	return &Envelope{
		EncryptedValue: ciphertext,
		Salt:           salt,
		IV:             iv,
		AuthTag:        tag,
	}, nil
}

// Decrypt opens an envelope produced by Encrypt.
func Decrypt(env *Envelope, key *Key) (string, error) {
	return DecryptWithAAD(env, key, nil)
}

// DecryptWithAAD opens an envelope produced by EncryptWithAAD. It returns
// ErrMalformedEnvelope or ErrIntegrity, both of which match
// ErrDecryptionFailed, and never a partial plaintext.
func DecryptWithAAD(env *Envelope, key *Key, aad []byte) (string, error) {
	if err := env.validate(); err != nil {
		return "", err
	}

	recordKey, err := deriveRecordKey(key, env.Salt)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(recordKey)

	plaintext, err := util.OpenAESGCM(env.EncryptedValue, env.AuthTag, recordKey, env.IV, aad)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	defer util.WipeBytes(plaintext)

	return string(plaintext), nil
}

func validatePlaintext(plaintext string) error {
	if plaintext == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidPlaintext)
	}
	if n := utf8.RuneCountInString(plaintext); n > MaxPlaintextLength {
		return fmt.Errorf("%w: %d characters exceeds maximum of %d", ErrInvalidPlaintext, n, MaxPlaintextLength)
	}
	return nil
}

// Config configures a Codec.
type Config struct {
	// MasterSecret is the server-held secret all user keys derive from.
	MasterSecret []byte
}

// Codec binds the master secret so callers only deal in identities.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	secret *memguard.Enclave
}

// New validates cfg and returns a Codec. The master secret is copied into
// an encrypted enclave; cfg.MasterSecret is left untouched.
func New(cfg Config) (*Codec, error) {
	if len(cfg.MasterSecret) == 0 {
		return nil, fmt.Errorf("%w: master secret is not set", ErrConfiguration)
	}
	if len(cfg.MasterSecret) < MinMasterSecretLength {
		return nil, fmt.Errorf("%w: master secret must be at least %d bytes, got %d",
			ErrConfiguration, MinMasterSecretLength, len(cfg.MasterSecret))
	}
	return &Codec{secret: memguard.NewEnclave(util.CopyBytes(cfg.MasterSecret))}, nil
}

// DeriveKey derives the key for id. The caller must Destroy it.
func (c *Codec) DeriveKey(id Identity) (*Key, error) {
	if c == nil || c.secret == nil {
		return nil, fmt.Errorf("%w: codec has no master secret", ErrConfiguration)
	}
	master, err := c.secret.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening master secret: %v", ErrConfiguration, err)
	}
	defer master.Destroy()

	return DeriveKey(id.UserID, id.Session(), master.Bytes())
}

// Seal derives the key for id, encrypts plaintext with aad and discards the key.
func (c *Codec) Seal(id Identity, plaintext string, aad []byte) (*Envelope, error) {
	key, err := c.DeriveKey(id)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	return EncryptWithAAD(plaintext, key, aad)
}

// Open derives the key for id, decrypts env with aad and discards the key.
func (c *Codec) Open(id Identity, env *Envelope, aad []byte) (string, error) {
	key, err := c.DeriveKey(id)
	if err != nil {
		return "", err
	}
	defer key.Destroy()

	return DecryptWithAAD(env, key, aad)
}
