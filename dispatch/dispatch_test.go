package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/suilink/account"
	"github.com/jmcleod/suilink/config"
	"github.com/jmcleod/suilink/gas"
	"github.com/jmcleod/suilink/internal/remote"
	"github.com/jmcleod/suilink/login"
	"github.com/jmcleod/suilink/prover"
	"github.com/jmcleod/suilink/signer"
	"github.com/jmcleod/suilink/storage/memory"
	"github.com/jmcleod/suilink/sui"
)

type fakeLogins struct {
	store *account.Store
	n     int
	err   error
}

func (f *fakeLogins) Login(ctx context.Context) (*account.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.n++
	sess := account.Session{
		Address:             fmt.Sprintf("0x%064x", f.n),
		Provider:            "twitch",
		Subject:             "u1",
		Audience:            "clientA",
		MaxEpoch:            102,
		CreatedAt:           time.Date(2026, 1, 1, 0, 0, f.n, 0, time.UTC),
		Salt:                "42",
		JWT:                 "secret.jwt.value",
		EphemeralPrivateKey: "c2VjcmV0",
	}
	if _, err := f.store.Upsert(ctx, sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

type fakeSigner struct {
	intent  signer.Intent
	message []byte
	err     error
}

func (f *fakeSigner) SignAndExecute(_ context.Context, _ string, intent signer.Intent) (string, error) {
	f.intent = intent
	if f.err != nil {
		return "", f.err
	}
	return "DigestBase58", nil
}

func (f *fakeSigner) SignPersonalMessage(_ context.Context, _ string, msg []byte) (string, error) {
	f.message = msg
	if f.err != nil {
		return "", f.err
	}
	return "c2ln", nil
}

func newDispatcher(t *testing.T) (*Dispatcher, *fakeLogins, *fakeSigner) {
	t.Helper()
	store, err := account.NewStore(memory.NewRepository(), nil)
	require.NoError(t, err)
	logins := &fakeLogins{store: store}
	s := &fakeSigner{}
	return New(store, logins, s), logins, s
}

func roundTrip(t *testing.T, d *Dispatcher, raw string) map[string]any {
	t.Helper()
	resp := d.DispatchJSON(context.Background(), []byte(raw))
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestEveryTypeIsHandled(t *testing.T) {
	d, _, _ := newDispatcher(t)
	for _, typ := range AllTypes {
		t.Run(string(typ), func(t *testing.T) {
			req, err := newRequest(typ)
			require.NoError(t, err)
			assert.Equal(t, typ, req.Type())
			_, err = d.handle(context.Background(), deref(req))
			assert.NotErrorIs(t, err, ErrUnknownType)
		})
	}
}

func TestUnknownType(t *testing.T) {
	d, _, _ := newDispatcher(t)
	out := roundTrip(t, d, `{"type": "SELF_DESTRUCT"}`)
	assert.Equal(t, "SELF_DESTRUCT", out["type"])
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, CodeInvalidRequest, out["code"])

	resp := d.DispatchJSON(context.Background(), []byte(`not json`))
	assert.False(t, resp.OK)
	assert.Empty(t, resp.Type)
}

func TestLoginAndStateExposeOnlyPublicData(t *testing.T) {
	d, _, _ := newDispatcher(t)

	out := roundTrip(t, d, `{"type": "START_LOGIN"}`)
	require.Equal(t, true, out["ok"], out["error"])
	acct := out["data"].(map[string]any)["account"].(map[string]any)
	assert.Equal(t, "u1", acct["sub"])
	assert.NotContains(t, acct, "jwt")
	assert.NotContains(t, acct, "ephemeralPrivateKey")

	first := roundTrip(t, d, `{"type": "GET_STATE"}`)
	second := roundTrip(t, d, `{"type": "GET_STATE"}`)
	assert.Equal(t, first, second)
	state := first["data"].(map[string]any)
	assert.Equal(t, true, state["overlayEnabled"])
	assert.Len(t, state["accounts"], 1)

	raw, err := json.Marshal(first)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret.jwt.value")
	assert.NotContains(t, string(raw), "c2VjcmV0")
}

func TestLogoutAndClear(t *testing.T) {
	d, logins, _ := newDispatcher(t)
	ctx := context.Background()
	a, err := logins.Login(ctx)
	require.NoError(t, err)
	_, err = logins.Login(ctx)
	require.NoError(t, err)

	resp := d.Dispatch(ctx, LogoutAccount{Address: a.Address})
	require.True(t, resp.OK, resp.Error)
	remaining := resp.Data.(map[string]any)["accounts"].([]account.PublicData)
	require.Len(t, remaining, 1)
	assert.NotEqual(t, a.Address, remaining[0].Address)

	resp = d.Dispatch(ctx, LogoutAccount{})
	assert.False(t, resp.OK)
	assert.Equal(t, CodeInvalidRequest, resp.Code)

	resp = d.Dispatch(ctx, ClearSessions{})
	require.True(t, resp.OK)
	state, err := d.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Accounts)
}

func TestSignAndExecuteIntents(t *testing.T) {
	d, _, s := newDispatcher(t)

	out := roundTrip(t, d, `{"type": "SIGN_AND_EXECUTE", "address": "0x1", "intent": {"kind": "transfer", "amount": "1.5", "recipient": "0xb0b"}}`)
	require.Equal(t, true, out["ok"])
	assert.Equal(t, "DigestBase58", out["data"].(map[string]any)["digest"])
	assert.Equal(t, signer.TransferIntent{Amount: "1.5", Recipient: "0xb0b"}, s.intent)

	out = roundTrip(t, d, `{"type": "SIGN_AND_EXECUTE", "address": "0x1", "intent": {"kind": "custom", "serializedBytes": "AQID"}}`)
	require.Equal(t, true, out["ok"])
	assert.Equal(t, signer.CustomIntent{TxBytes: []byte{1, 2, 3}}, s.intent)

	out = roundTrip(t, d, `{"type": "SIGN_AND_EXECUTE", "address": "0x1", "intent": {"kind": "stake"}}`)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, CodeInvalidRequest, out["code"])
}

func TestSignPersonalMessage(t *testing.T) {
	d, _, s := newDispatcher(t)
	out := roundTrip(t, d, `{"type": "SIGN_PERSONAL_MESSAGE", "address": "0x1", "messageBytesBase64": "aGVsbG8="}`)
	require.Equal(t, true, out["ok"])
	assert.Equal(t, "c2ln", out["data"].(map[string]any)["signature"])
	assert.Equal(t, []byte("hello"), s.message)

	out = roundTrip(t, d, `{"type": "SIGN_PERSONAL_MESSAGE", "address": "0x1"}`)
	assert.Equal(t, false, out["ok"])
}

func TestConfigAndOverlay(t *testing.T) {
	d, _, _ := newDispatcher(t)

	out := roundTrip(t, d, `{"type": "SAVE_CONFIG", "config": {"clientId": "abc"}}`)
	require.Equal(t, true, out["ok"], out["error"])
	cfg := out["data"].(map[string]any)["config"].(map[string]any)
	assert.Equal(t, "abc", cfg["clientId"])
	assert.Equal(t, "testnet", cfg["network"], "unset keys fall through to defaults")

	out = roundTrip(t, d, `{"type": "GET_CONFIG"}`)
	assert.Equal(t, "abc", out["data"].(map[string]any)["config"].(map[string]any)["clientId"])

	out = roundTrip(t, d, `{"type": "SAVE_CONFIG", "config": {"proverUrl": "not a url"}}`)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, CodeConfiguration, out["code"])

	out = roundTrip(t, d, `{"type": "SET_OVERLAY_ENABLED", "enabled": false}`)
	require.Equal(t, true, out["ok"])
	assert.Equal(t, false, out["data"].(map[string]any)["enabled"])
	state, err := d.State(context.Background())
	require.NoError(t, err)
	assert.False(t, state.OverlayEnabled)
}

func TestSaveConfigReportsPendingNetworkChange(t *testing.T) {
	store, err := account.NewStore(memory.NewRepository(), nil)
	require.NoError(t, err)
	d := New(store, &fakeLogins{store: store}, &fakeSigner{}, WithActiveNetwork("testnet"))

	out := roundTrip(t, d, `{"type": "SAVE_CONFIG", "config": {"clientId": "abc"}}`)
	require.Equal(t, true, out["ok"], out["error"])
	data := out["data"].(map[string]any)
	assert.Equal(t, "testnet", data["activeNetwork"])
	assert.Equal(t, false, data["restartRequired"])

	out = roundTrip(t, d, `{"type": "SAVE_CONFIG", "config": {"clientId": "abc", "network": "devnet"}}`)
	require.Equal(t, true, out["ok"], out["error"])
	data = out["data"].(map[string]any)
	assert.Equal(t, "devnet", data["config"].(map[string]any)["network"])
	assert.Equal(t, "testnet", data["activeNetwork"])
	assert.Equal(t, true, data["restartRequired"])
}

func TestFailuresAreEnveloped(t *testing.T) {
	d, logins, s := newDispatcher(t)

	s.err = fmt.Errorf("signing: %w", signer.ErrNoSession)
	resp := d.Dispatch(context.Background(), SignPersonalMessage{Address: "0x1", MessageBytesBase64: "AA=="})
	assert.Equal(t, TypeSignPersonalMessage, resp.Type)
	assert.Equal(t, CodeNoSession, resp.Code)
	assert.Contains(t, resp.Error, "log in again")

	_, s.err = sui.ParseAmount("0")
	out := roundTrip(t, d, `{"type": "SIGN_AND_EXECUTE", "address": "0x1", "intent": {"kind": "transfer", "amount": "0", "recipient": "0xb0b"}}`)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, CodeInvalidRequest, out["code"])

	logins.err = &login.Error{State: login.StateIdle, Err: login.ErrMissingClientID}
	resp = d.Dispatch(context.Background(), StartLogin{})
	assert.Equal(t, CodeConfiguration, resp.Code)
	assert.Equal(t, login.ErrMissingClientID.Error(), resp.Error)
}

func TestClassify(t *testing.T) {
	_, amountErr := sui.ParseAmount("1.0000000001")
	require.Error(t, amountErr)
	_, addressErr := sui.ParseAddress("0xa11ce-not-hex")
	require.Error(t, addressErr)

	cases := map[string]struct {
		err  error
		code string
	}{
		"transport": {&remote.StatusError{Service: "salt", StatusCode: 502, Body: "bad gateway"}, CodeTransport},
		"protocol":  {&prover.MissingFieldsError{Missing: []string{"proofPoints"}}, CodeProtocol},
		"funds":     {fmt.Errorf("x: %w", &gas.InsufficientFundsError{ForTransfer: true}), CodeInsufficientFunds},
		"config":    {config.ErrInvalid, CodeConfiguration},
		"amount":    {amountErr, CodeInvalidRequest},
		"recipient": {fmt.Errorf("recipient: %w", addressErr), CodeInvalidRequest},
		"unknown":   {fmt.Errorf("boom"), CodeInternal},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.code, Classify(tc.err))
		})
	}
}
