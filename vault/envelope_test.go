package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealTestEnvelope(t *testing.T) (*Envelope, *Key) {
	t.Helper()
	key, err := DeriveKey("user-42", "user-42", testMasterSecret)
	require.NoError(t, err)
	t.Cleanup(key.Destroy)

	env, err := Encrypt("sk-test-1234567890", key)
	require.NoError(t, err)
	return env, key
}

func TestEnvelopeEncoding(t *testing.T) {
	env, key := sealTestEnvelope(t)

	encoded := env.Encode()
	assert.NotEmpty(t, encoded.EncryptedValue)
	assert.NotEmpty(t, encoded.Salt)
	assert.NotEmpty(t, encoded.IV)
	assert.NotEmpty(t, encoded.AuthTag)

	decoded, err := encoded.Decode()
	require.NoError(t, err)
	assert.Equal(t, env, decoded)

	plain, err := Decrypt(decoded, key)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890", plain)
}

func TestEnvelopeDecodeMalformed(t *testing.T) {
	env, _ := sealTestEnvelope(t)
	good := env.Encode()

	tests := []struct {
		name   string
		mutate func(e *EncodedEnvelope)
		want   string
	}{
		{"missing encrypted value", func(e *EncodedEnvelope) { e.EncryptedValue = "" }, "encrypted_value is missing"},
		{"missing salt", func(e *EncodedEnvelope) { e.Salt = "" }, "salt is missing"},
		{"missing iv", func(e *EncodedEnvelope) { e.IV = "" }, "iv is missing"},
		{"missing auth tag", func(e *EncodedEnvelope) { e.AuthTag = "" }, "auth_tag is missing"},
		{"invalid base64", func(e *EncodedEnvelope) { e.IV = "not base64!" }, "iv is not valid base64"},
		{"short salt", func(e *EncodedEnvelope) { e.Salt = "AAAA" }, "salt must be 16 bytes"},
		{"short tag", func(e *EncodedEnvelope) { e.AuthTag = "AAAA" }, "auth_tag must be 16 bytes"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bad := good
			tc.mutate(&bad)
			_, err := bad.Decode()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
			assert.ErrorIs(t, err, ErrDecryptionFailed)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestEncodedEnvelopeDetectsEveryBitFlip(t *testing.T) {
	codec, err := New(Config{MasterSecret: testMasterSecret})
	require.NoError(t, err)
	id := Identity{UserID: "user-42"}

	env, err := codec.Seal(id, "sk-test-1234567890", nil)
	require.NoError(t, err)
	encoded := env.Encode()

	fields := map[string]*string{
		"encrypted_value": &encoded.EncryptedValue,
		"salt":            &encoded.Salt,
		"iv":              &encoded.IV,
		"auth_tag":        &encoded.AuthTag,
	}
	for name, field := range fields {
		original := *field
		for i := 0; i < len(original); i++ {
			for bit := 0; bit < 8; bit++ {
				b := []byte(original)
				b[i] ^= 1 << bit
				*field = string(b)

				decoded, err := encoded.Decode()
				if err == nil {
					_, err = codec.Open(id, decoded, nil)
				}
				assert.ErrorIs(t, err, ErrDecryptionFailed,
					"%s: flipping bit %d of char %d went undetected", name, bit, i)
			}
		}
		*field = original
	}

	decoded, err := encoded.Decode()
	require.NoError(t, err)
	plain, err := codec.Open(id, decoded, nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890", plain)
}
