package vault

import "errors"

var (
	// ErrConfiguration indicates the master secret is missing or unusable.
	// It is a fatal server misconfiguration, never a per-request condition.
	ErrConfiguration = errors.New("vault configuration error")
	// ErrInvalidIdentity indicates an empty user or session identifier.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidPlaintext indicates a plaintext that is empty or too long to seal.
	ErrInvalidPlaintext = errors.New("invalid plaintext")

	// ErrDecryptionFailed matches every failure to open an envelope. Callers
	// that talk to end users should only ever test for this one.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrMalformedEnvelope indicates a missing or structurally invalid envelope field.
	ErrMalformedEnvelope error = &decryptError{msg: "malformed envelope"}
	// ErrIntegrity indicates authentication tag verification failed: the
	// envelope was tampered with or corrupted, or the key is wrong.
	ErrIntegrity error = &decryptError{msg: "integrity check failed"}
)

type decryptError struct {
	msg string
}

func (e *decryptError) Error() string {
	return e.msg
}

func (e *decryptError) Is(target error) bool {
	return target == ErrDecryptionFailed
}
