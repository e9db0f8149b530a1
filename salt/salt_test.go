package salt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/suilink/internal/remote"
)

type recorded struct {
	method string
	path   string
	body   map[string]string
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

func saltServer(t *testing.T, status int, response string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recorded{method: r.Method, path: r.URL.Path}
		if r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&call.body)
		}
		rec.mu.Lock()
		rec.calls = append(rec.calls, call)
		rec.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestResolveBackendMode(t *testing.T) {
	srv, calls := saltServer(t, http.StatusOK, `{"salt":"42"}`)
	r := NewResolver(WithHTTPClient(srv.Client()))

	s, err := r.Resolve(context.Background(), srv.URL+"/api/salts", "u1", "token")
	require.NoError(t, err)
	assert.Equal(t, "42", s)

	got := calls.all()
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/api/salts/ensure", c.path)
	assert.Equal(t, map[string]string{"jwt": "token", "subject": "u1"}, c.body)
}

func TestResolveFallbackPost(t *testing.T) {
	srv, calls := saltServer(t, http.StatusOK, `{"salt":"7"}`)
	r := NewResolver(WithHTTPClient(srv.Client()))

	s, err := r.Resolve(context.Background(), srv.URL+"/get_salt", "u1", "token")
	require.NoError(t, err)
	assert.Equal(t, "7", s)
	got := calls.all()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPost, got[0].method)
	assert.Equal(t, map[string]string{"jwt": "token"}, got[0].body)
}

func TestResolveRemoteDummyUsesGet(t *testing.T) {
	srv, calls := saltServer(t, http.StatusOK, `{"salt":"99"}`)
	r := NewResolver(WithHTTPClient(srv.Client()))

	s, err := r.Resolve(context.Background(), srv.URL+"/static/dummy-salt.json", "u1", "token")
	require.NoError(t, err)
	assert.Equal(t, "99", s)
	got := calls.all()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodGet, got[0].method)
}

func TestResolveBundledDummy(t *testing.T) {
	r := NewResolver()
	s, err := r.Resolve(context.Background(), "dummy-salt.json", "u1", "token")
	require.NoError(t, err)
	assert.Equal(t, "129390038577185583942388216820280642146", s)

	r = NewResolver(WithAssets(fstest.MapFS{"dummy-salt.json": {Data: []byte(`{"salt":"5"}`)}}))
	s, err = r.Resolve(context.Background(), "./dummy-salt.json", "u1", "token")
	require.NoError(t, err)
	assert.Equal(t, "5", s)

	_, err = r.Resolve(context.Background(), "other.json", "u1", "token")
	assert.Error(t, err)
}

func TestResolveErrors(t *testing.T) {
	_, err := NewResolver().Resolve(context.Background(), " ", "u1", "token")
	assert.ErrorIs(t, err, ErrNoService)

	srv, _ := saltServer(t, http.StatusForbidden, "denied")
	_, err = NewResolver(WithHTTPClient(srv.Client())).Resolve(context.Background(), srv.URL+"/salts", "u1", "token")
	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Contains(t, err.Error(), "denied")

	for _, body := range []string{`{}`, `{"salt":""}`, `{"other":"1"}`} {
		srv, _ := saltServer(t, http.StatusOK, body)
		_, err := NewResolver(WithHTTPClient(srv.Client())).Resolve(context.Background(), srv.URL+"/salt", "u1", "token")
		assert.ErrorIs(t, err, ErrMissingSalt, body)
	}

	srv, _ = saltServer(t, http.StatusOK, `{"salt":"abc"}`)
	_, err = NewResolver(WithHTTPClient(srv.Client())).Resolve(context.Background(), srv.URL+"/salt", "u1", "token")
	assert.ErrorContains(t, err, "invalid salt")
}
