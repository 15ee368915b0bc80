package vault

import (
	"fmt"

	"github.com/ledgerkeep/ledgerkeep/internal/util"
)

const (
	SaltSize = 16
	IVSize   = util.GCMNonceSize
	TagSize  = util.GCMTagSize
)

// Envelope is one sealed secret plus everything besides the key needed to open it.
type Envelope struct {
	EncryptedValue []byte
	Salt           []byte
	IV             []byte
	AuthTag        []byte
}

// EncodedEnvelope is the text form of an Envelope, one base64 string per field.
type EncodedEnvelope struct {
	EncryptedValue string `json:"encrypted_value"`
	Salt           string `json:"salt"`
	IV             string `json:"iv"`
	AuthTag        string `json:"auth_tag"`
}

// Encode returns the base64 text form of the envelope.
func (e *Envelope) Encode() EncodedEnvelope {
	return EncodedEnvelope{
		EncryptedValue: util.Base64Encode(e.EncryptedValue),
		Salt:           util.Base64Encode(e.Salt),
		IV:             util.Base64Encode(e.IV),
		AuthTag:        util.Base64Encode(e.AuthTag),
	}
}

// Decode parses the text form back into an Envelope and checks its shape.
func (e EncodedEnvelope) Decode() (*Envelope, error) {
	var (
		env Envelope
		err error
	)
	if env.EncryptedValue, err = decodeField("encrypted_value", e.EncryptedValue); err != nil {
		return nil, err
	}
	if env.Salt, err = decodeField("salt", e.Salt); err != nil {
		return nil, err
	}
	if env.IV, err = decodeField("iv", e.IV); err != nil {
		return nil, err
	}
	if env.AuthTag, err = decodeField("auth_tag", e.AuthTag); err != nil {
		return nil, err
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func decodeField(name, src string) ([]byte, error) {
	if src == "" {
		return nil, fmt.Errorf("%w: %s is missing", ErrMalformedEnvelope, name)
	}
	b, err := util.Base64Decode(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64", ErrMalformedEnvelope, name)
	}
	return b, nil
}

func (e *Envelope) validate() error {
	if e == nil {
		return fmt.Errorf("%w: envelope is nil", ErrMalformedEnvelope)
	}
	if len(e.EncryptedValue) == 0 {
		return fmt.Errorf("%w: encrypted_value is missing", ErrMalformedEnvelope)
	}
	if len(e.Salt) != SaltSize {
		return fmt.Errorf("%w: salt must be %d bytes, got %d", ErrMalformedEnvelope, SaltSize, len(e.Salt))
	}
	if len(e.IV) != IVSize {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrMalformedEnvelope, IVSize, len(e.IV))
	}
	if len(e.AuthTag) != TagSize {
		return fmt.Errorf("%w: auth_tag must be %d bytes, got %d", ErrMalformedEnvelope, TagSize, len(e.AuthTag))
	}
	return nil
}
