package login

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"math/big"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/suilink/account"
	"github.com/jmcleod/suilink/config"
	"github.com/jmcleod/suilink/internal/util"
	"github.com/jmcleod/suilink/oauth"
	"github.com/jmcleod/suilink/prover"
	"github.com/jmcleod/suilink/storage/memory"
	"github.com/jmcleod/suilink/sui"
	"github.com/jmcleod/suilink/sui/suitest"
	"github.com/jmcleod/suilink/zklogin"
	"github.com/jmcleod/suilink/zklogin/zklogintest"
)

const proofJSON = `{"data": {
	"proofPoints": {"a": ["1", "2", "1"], "b": [["3", "4"], ["5", "6"], ["1", "0"]], "c": ["7", "8", "1"]},
	"issBase64Details": {"value": "aXNz", "indexMod4": 2},
	"headerBase64": "eyJhbGciOiJSUzI1NiJ9"
}}`

type fakeLauncher struct {
	t       testing.TB
	mu      sync.Mutex
	authURL string
	claims  map[string]any
	empty   bool
}

func (l *fakeLauncher) RedirectURL() string { return "http://127.0.0.1:3000/callback" }

func (l *fakeLauncher) Launch(_ context.Context, authURL string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.authURL = authURL
	if l.empty {
		return "", nil
	}
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	claims := map[string]any{"sub": "u1", "aud": "clientA", "nonce": u.Query().Get("nonce")}
	for k, v := range l.claims {
		claims[k] = v
	}
	return l.RedirectURL() + "#id_token=" + zklogintest.Token(l.t, claims) + "&scope=openid", nil
}

type saltFunc func(ctx context.Context, serviceURL, subject, jwt string) (string, error)

func (f saltFunc) Resolve(ctx context.Context, serviceURL, subject, jwt string) (string, error) {
	return f(ctx, serviceURL, subject, jwt)
}

type recorder struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (r *recorder) add(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, b)
}

func (r *recorder) all() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.bodies...)
}

type fixture struct {
	node      *suitest.Node
	store     *account.Store
	launcher  *fakeLauncher
	prover    *httptest.Server
	proverMu  sync.Mutex
	proverOK  bool
	proverRaw string
	hook      *recorder
	hookURL   string
	registrar *Registrar
	states    []State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{node: suitest.NewNode(t), launcher: &fakeLauncher{t: t}, proverOK: true, proverRaw: proofJSON, hook: &recorder{}}

	store, err := account.NewStore(memory.NewRepository(), nil)
	require.NoError(t, err)
	f.store = store

	f.prover = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.proverMu.Lock()
		ok, body := f.proverOK, f.proverRaw
		f.proverMu.Unlock()
		if !ok {
			http.Error(w, "prover down", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(f.prover.Close)

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.hook.add(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(hook.Close)
	f.hookURL = hook.URL + "/register"
	f.registrar = NewRegistrar(hook.Client(), nil)
	t.Cleanup(f.registrar.Close)

	_, err = store.SaveConfig(context.Background(), config.Extension{
		ClientID:   "clientA",
		ProverURL:  f.prover.URL,
		BackendURL: f.hookURL,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) setProver(ok bool, body string) {
	f.proverMu.Lock()
	defer f.proverMu.Unlock()
	f.proverOK, f.proverRaw = ok, body
}

func (f *fixture) orchestrator() *Orchestrator {
	return NewOrchestrator(Dependencies{
		Store:    f.store,
		Chain:    f.node.Client(),
		Launcher: f.launcher,
		Salts: saltFunc(func(context.Context, string, string, string) (string, error) {
			return "42", nil
		}),
		Prover:  prover.NewRequestor(prover.WithHTTPClient(f.prover.Client())),
		Network: "testnet",
	},
		WithRegistrar(f.registrar),
		WithObserver(func(_, to State) { f.states = append(f.states, to) }),
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	)
}

func TestLoginPersistsSession(t *testing.T) {
	f := newFixture(t)

	sess, err := f.orchestrator().Login(context.Background())
	require.NoError(t, err)

	seed, err := zklogin.SubjectAddressSeed("42", "u1", "clientA")
	require.NoError(t, err)
	want, err := zklogin.ComputeAddressFromSeed(seed, zklogintest.Issuer)
	require.NoError(t, err)

	assert.Equal(t, want.String(), sess.Address)
	assert.Equal(t, oauth.Provider, sess.Provider)
	assert.Equal(t, "u1", sess.Subject)
	assert.Equal(t, "clientA", sess.Audience)
	assert.Equal(t, uint64(102), sess.MaxEpoch)
	assert.Equal(t, "42", sess.Salt)
	assert.Empty(t, sess.Proof.AddressSeed)
	assert.Equal(t, []State{
		StateAwaitingProviderRedirect,
		StateTokenReceived,
		StateSaltResolved,
		StateProofReceived,
		StateSessionPersisted,
	}, f.states)

	seedBytes, err := util.Base64Decode(sess.EphemeralPrivateKey)
	require.NoError(t, err)
	kp, err := sui.KeypairFromSeed(seedBytes)
	require.NoError(t, err)
	nonce, err := zklogin.GenerateNonce(kp.PublicKey(), sess.MaxEpoch, sess.Randomness)
	require.NoError(t, err)
	u, err := url.Parse(f.launcher.authURL)
	require.NoError(t, err)
	assert.Equal(t, nonce, u.Query().Get("nonce"))
	assert.Equal(t, "clientA", u.Query().Get("client_id"))

	stored, err := f.store.Find(context.Background(), sess.Address)
	require.NoError(t, err)
	assert.Equal(t, sess.JWT, stored.JWT)

	f.registrar.Close()
	bodies := f.hook.all()
	require.Len(t, bodies, 1)
	var reg Registration
	require.NoError(t, json.Unmarshal(bodies[0], &reg))
	assert.Equal(t, sess.Address, reg.Address)
	assert.Equal(t, "twitch", reg.Provider)
	assert.Equal(t, "u1", reg.Subject)
	assert.Equal(t, "clientA", reg.Audience)
	assert.True(t, reg.RegisteredAt.Equal(sess.CreatedAt))
}

func TestLoginRepeatReplacesSession(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	first, err := o.Login(context.Background())
	require.NoError(t, err)
	second, err := o.Login(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Address, second.Address)
	list, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.Randomness, list[0].Randomness)
}

func TestLoginRequiresClientID(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.SaveConfig(context.Background(), config.Extension{ProverURL: f.prover.URL})
	require.NoError(t, err)

	_, err = f.orchestrator().Login(context.Background())
	assert.ErrorIs(t, err, ErrMissingClientID)
	assert.Empty(t, f.launcher.authURL)
}

func TestLoginNoRedirect(t *testing.T) {
	f := newFixture(t)
	f.launcher.empty = true

	_, err := f.orchestrator().Login(context.Background())
	assert.ErrorIs(t, err, oauth.ErrNoRedirect)
	assert.Equal(t, "no redirect URL returned", err.Error())
	assert.Equal(t, []State{StateAwaitingProviderRedirect, StateFailed}, f.states)
}

func TestLoginProverFailureLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	f.setProver(false, "")

	_, err := f.orchestrator().Login(context.Background())
	require.Error(t, err)
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, StateSaltResolved, le.State)

	list, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	f.registrar.Close()
	assert.Empty(t, f.hook.all())
}

func TestLoginUsesProofAddressSeed(t *testing.T) {
	f := newFixture(t)
	f.setProver(true, `{
		"proofPoints": {"a": ["1", "2", "1"], "b": [["3", "4"], ["5", "6"], ["1", "0"]], "c": ["7", "8", "1"]},
		"issBase64Details": {"value": "aXNz", "indexMod4": 2},
		"headerBase64": "eyJhbGciOiJSUzI1NiJ9",
		"addressSeed": "12345"
	}`)

	sess, err := f.orchestrator().Login(context.Background())
	require.NoError(t, err)

	want, err := zklogin.ComputeAddressFromSeed(mustSeed(t, "12345"), zklogintest.Issuer)
	require.NoError(t, err)
	assert.Equal(t, want.String(), sess.Address, "proof-derived address wins on mismatch")
	assert.Equal(t, "12345", sess.Proof.AddressSeed)
}

func TestLoginRejectsTokenWithoutSubject(t *testing.T) {
	f := newFixture(t)
	f.launcher.claims = map[string]any{"sub": nil}

	_, err := f.orchestrator().Login(context.Background())
	assert.ErrorIs(t, err, zklogin.ErrMissingClaim)
}

func TestRegistrarDropsFailures(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewRegistrar(srv.Client(), nil)
	r.Enqueue(srv.URL, Registration{Address: "0x1"})
	r.Close()
	r.Enqueue(srv.URL, Registration{Address: "0x2"})
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "a failed registration is not retried")
}

func mustSeed(t *testing.T, s string) *big.Int {
	t.Helper()
	n, err := zklogin.ParseAddressSeed(s)
	require.NoError(t, err)
	return n
}
