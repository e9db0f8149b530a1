// Package dispatch is the request/response facade used by UI clients. Every
// request is a tagged JSON object and every answer is a Response envelope
// carrying the same type.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmcleod/suilink/config"
	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/signer"
)

// Type tags a request and its response.
type Type string

const (
	TypeStartLogin          Type = "START_LOGIN"
	TypeLogoutAccount       Type = "LOGOUT_ACCOUNT"
	TypeSignAndExecute      Type = "SIGN_AND_EXECUTE"
	TypeSignPersonalMessage Type = "SIGN_PERSONAL_MESSAGE"
	TypeGetState            Type = "GET_STATE"
	TypeGetConfig           Type = "GET_CONFIG"
	TypeSaveConfig          Type = "SAVE_CONFIG"
	TypeSetOverlayEnabled   Type = "SET_OVERLAY_ENABLED"
	TypeClearSessions       Type = "CLEAR_SESSIONS"
)

// AllTypes lists every request type the dispatcher accepts.
var AllTypes = []Type{
	TypeStartLogin,
	TypeLogoutAccount,
	TypeSignAndExecute,
	TypeSignPersonalMessage,
	TypeGetState,
	TypeGetConfig,
	TypeSaveConfig,
	TypeSetOverlayEnabled,
	TypeClearSessions,
}

var (
	ErrUnknownType   = errors.New("unknown request type")
	ErrUnknownIntent = errors.New("unknown intent kind")
	ErrMissingField  = errors.New("missing required field")
)

// Request is one of the request structs in this package.
type Request interface {
	Type() Type
	validate() error
}

type StartLogin struct{}

type LogoutAccount struct {
	Address string `json:"address"`
}

// IntentPayload is the wire form of a transaction intent. Kind is
// "transfer" (Amount, Recipient) or "custom" (SerializedBytes, base64 BCS).
type IntentPayload struct {
	Kind            string `json:"kind"`
	Amount          string `json:"amount,omitempty"`
	Recipient       string `json:"recipient,omitempty"`
	SerializedBytes string `json:"serializedBytes,omitempty"`
}

type SignAndExecute struct {
	Address string        `json:"address"`
	Intent  IntentPayload `json:"intent"`
}

type SignPersonalMessage struct {
	Address            string `json:"address"`
	MessageBytesBase64 string `json:"messageBytesBase64"`
}

type GetState struct{}

type GetConfig struct{}

type SaveConfig struct {
	Config config.Extension `json:"config"`
}

type SetOverlayEnabled struct {
	Enabled bool `json:"enabled"`
}

// ClearSessions removes every stored session.
type ClearSessions struct{}

func (StartLogin) Type() Type          { return TypeStartLogin }
func (LogoutAccount) Type() Type       { return TypeLogoutAccount }
func (SignAndExecute) Type() Type      { return TypeSignAndExecute }
func (SignPersonalMessage) Type() Type { return TypeSignPersonalMessage }
func (GetState) Type() Type            { return TypeGetState }
func (GetConfig) Type() Type           { return TypeGetConfig }
func (SaveConfig) Type() Type          { return TypeSaveConfig }
func (SetOverlayEnabled) Type() Type   { return TypeSetOverlayEnabled }
func (ClearSessions) Type() Type       { return TypeClearSessions }

func (StartLogin) validate() error        { return nil }
func (GetState) validate() error          { return nil }
func (GetConfig) validate() error         { return nil }
func (SaveConfig) validate() error        { return nil }
func (ClearSessions) validate() error     { return nil }
func (SetOverlayEnabled) validate() error { return nil }

func (r LogoutAccount) validate() error {
	return requireField("address", r.Address)
}

func (r SignAndExecute) validate() error {
	return requireField("address", r.Address)
}

func (r SignPersonalMessage) validate() error {
	if err := requireField("address", r.Address); err != nil {
		return err
	}
	return requireField("messageBytesBase64", r.MessageBytesBase64)
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return nil
}

// signerIntent converts the wire intent.
func (p IntentPayload) signerIntent() (signer.Intent, error) {
	switch p.Kind {
	case "transfer":
		return signer.TransferIntent{Amount: p.Amount, Recipient: p.Recipient}, nil
	case "custom":
		if p.SerializedBytes == "" {
			return nil, fmt.Errorf("%w: intent.serializedBytes", ErrMissingField)
		}
		b, err := util.Base64Decode(p.SerializedBytes)
		if err != nil {
			return nil, fmt.Errorf("decoding intent.serializedBytes: %w", err)
		}
		return signer.CustomIntent{TxBytes: b}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, p.Kind)
	}
}

func newRequest(t Type) (Request, error) {
	switch t {
	case TypeStartLogin:
		return &StartLogin{}, nil
	case TypeLogoutAccount:
		return &LogoutAccount{}, nil
	case TypeSignAndExecute:
		return &SignAndExecute{}, nil
	case TypeSignPersonalMessage:
		return &SignPersonalMessage{}, nil
	case TypeGetState:
		return &GetState{}, nil
	case TypeGetConfig:
		return &GetConfig{}, nil
	case TypeSaveConfig:
		return &SaveConfig{}, nil
	case TypeSetOverlayEnabled:
		return &SetOverlayEnabled{}, nil
	case TypeClearSessions:
		return &ClearSessions{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// Decode parses a tagged request. The returned Type is set whenever the tag
// could be read, even if decoding failed, so the error can be answered with
// a matching envelope.
func Decode(raw []byte) (Type, Request, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", nil, fmt.Errorf("decoding request: %w", err)
	}
	req, err := newRequest(head.Type)
	if err != nil {
		return head.Type, nil, err
	}
	if err := json.Unmarshal(raw, req); err != nil {
		return head.Type, nil, fmt.Errorf("decoding %s request: %w", head.Type, err)
	}
	return head.Type, deref(req), nil
}

// deref returns request values so handlers switch on value types.
func deref(r Request) Request {
	switch v := r.(type) {
	case *StartLogin:
		return *v
	case *LogoutAccount:
		return *v
	case *SignAndExecute:
		return *v
	case *SignPersonalMessage:
		return *v
	case *GetState:
		return *v
	case *GetConfig:
		return *v
	case *SaveConfig:
		return *v
	case *SetOverlayEnabled:
		return *v
	case *ClearSessions:
		return *v
	}
	return r
}
