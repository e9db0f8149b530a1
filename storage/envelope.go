package storage

import (
	"encoding/json"
	"fmt"

	"github.com/jmcleod/suilink/internal/util"
)

const (
	SchemeSealed = "aes256gcm"
	SchemePlain  = "json"
)

// Envelope is a stored record. Sealed envelopes carry AES-256-GCM
// ciphertext; plain envelopes carry the JSON document in Payload.
type Envelope struct {
	Ver     int    `json:"ver"`
	Scheme  string `json:"scheme"`
	Nonce   []byte `json:"nonce,omitempty"`
	Payload []byte `json:"payload"`
}

// SealJSON marshals v and encrypts it under key, binding aad.
func SealJSON(key []byte, v any, aad []byte) (*Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling record: %w", err)
	}
	defer util.WipeBytes(data)
	nonce, ct, err := util.SealGCM(key, data, aad)
	if err != nil {
		return nil, err
	}
	return &Envelope{Ver: 1, Scheme: SchemeSealed, Nonce: nonce, Payload: ct}, nil
}

// PlainJSON wraps v without encryption.
func PlainJSON(v any) (*Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling record: %w", err)
	}
	return &Envelope{Ver: 1, Scheme: SchemePlain, Payload: data}, nil
}

// OpenJSON decodes an envelope into v. key may be nil for plain envelopes.
func OpenJSON(key []byte, envelope *Envelope, aad []byte, v any) error {
	if envelope.Ver != 1 {
		return fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	switch envelope.Scheme {
	case SchemePlain:
		return json.Unmarshal(envelope.Payload, v)
	case SchemeSealed:
		if key == nil {
			return fmt.Errorf("sealed envelope requires a key")
		}
		data, err := util.OpenGCM(key, envelope.Nonce, envelope.Payload, aad)
		if err != nil {
			return err
		}
		defer util.WipeBytes(data)
		return json.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}
}

// CloneEnvelope returns a deep copy of env.
func CloneEnvelope(env *Envelope) *Envelope {
	if env == nil {
		return nil
	}
	return &Envelope{
		Ver:     env.Ver,
		Scheme:  env.Scheme,
		Nonce:   util.CopyBytes(env.Nonce),
		Payload: util.CopyBytes(env.Payload),
	}
}
