package prover

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/suilink/internal/remote"
)

const proofJSON = `{
	"proofPoints": {"a": ["1", "2", "1"], "b": [["3", "4"], ["5", "6"], ["1", "0"]], "c": ["7", "8", "1"]},
	"issBase64Details": {"value": "aXNz", "indexMod4": 2},
	"headerBase64": "eyJhbGciOiJSUzI1NiJ9"
}`

func proverServer(t *testing.T, status int, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func baseRequest(url string) Request {
	return Request{
		ProverURL:          url,
		JWT:                "header.payload.sig",
		AuthToken:          "secret",
		Network:            "testnet",
		MaxEpoch:           12,
		Randomness:         "99",
		EphemeralPublicKey: "AAEC",
	}
}

func TestRequestSendsContract(t *testing.T) {
	type captured struct {
		jwt, auth string
		body      map[string]any
	}
	seen := make(chan captured, 1)
	srv := proverServer(t, http.StatusOK, proofJSON, func(r *http.Request) {
		c := captured{jwt: r.Header.Get(JWTHeader), auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		seen <- c
	})

	proof, err := NewRequestor(WithHTTPClient(srv.Client())).Request(context.Background(), baseRequest(srv.URL))
	require.NoError(t, err)
	got := <-seen
	assert.Equal(t, "header.payload.sig", got.jwt)
	assert.Equal(t, "Bearer secret", got.auth)
	assert.Equal(t, map[string]any{
		"network":            "testnet",
		"ephemeralPublicKey": "AAEC",
		"maxEpoch":           float64(12),
		"randomness":         "99",
	}, got.body)
	assert.NotContains(t, got.body, "jwt")

	assert.Equal(t, []string{"7", "8", "1"}, proof.ProofPoints.C)
	assert.Equal(t, uint8(2), proof.IssBase64Details.IndexMod4)
	assert.Empty(t, proof.AddressSeed)
}

func TestRequestOmitsBearerWithoutToken(t *testing.T) {
	srv := proverServer(t, http.StatusOK, proofJSON, func(r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
	})
	req := baseRequest(srv.URL)
	req.AuthToken = ""
	_, err := NewRequestor(WithHTTPClient(srv.Client())).Request(context.Background(), req)
	require.NoError(t, err)
}

func TestRequestUnwrapsData(t *testing.T) {
	top := proverServer(t, http.StatusOK, proofJSON, nil)
	nested := proverServer(t, http.StatusOK, `{"data":`+proofJSON+`}`, nil)

	r := NewRequestor(WithHTTPClient(top.Client()))
	a, err := r.Request(context.Background(), baseRequest(top.URL))
	require.NoError(t, err)
	b, err := r.Request(context.Background(), baseRequest(nested.URL))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRequestNormalisesAddressSeed(t *testing.T) {
	cases := map[string]string{
		`"123"`:  "123",
		`456`:    "456",
		`"0x1f"`: "31",
		`"0010"`: "10",
	}
	for raw, want := range cases {
		body := `{"data":{"proofPoints":{"a":[],"b":[],"c":[]},"issBase64Details":{"value":"x","indexMod4":0},"headerBase64":"h","addressSeed":` + raw + `}}`
		srv := proverServer(t, http.StatusOK, body, nil)
		proof, err := NewRequestor(WithHTTPClient(srv.Client())).Request(context.Background(), baseRequest(srv.URL))
		require.NoError(t, err, raw)
		assert.Equal(t, want, proof.AddressSeed, raw)
	}
}

func TestRequestMissingFields(t *testing.T) {
	srv := proverServer(t, http.StatusOK, `{"headerBase64":"h","zkp":{}}`, nil)
	_, err := NewRequestor(WithHTTPClient(srv.Client())).Request(context.Background(), baseRequest(srv.URL))

	var mf *MissingFieldsError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, []string{"proofPoints", "issBase64Details"}, mf.Missing)
	assert.Equal(t, []string{"headerBase64", "zkp"}, mf.Present)
	assert.Contains(t, err.Error(), "present keys: headerBase64, zkp")
}

func TestRequestRejectsNonHTTPURLs(t *testing.T) {
	r := NewRequestor()
	for _, u := range []string{"", "/v1/zkp", "prover.json", "ftp://prover.example/zkp", "https://"} {
		_, err := r.Request(context.Background(), baseRequest(u))
		assert.ErrorIs(t, err, ErrInvalidURL, u)
	}
}

func TestRequestSurfacesHTTPStatus(t *testing.T) {
	srv := proverServer(t, http.StatusUnauthorized, `{"message":"bad token"}`, nil)
	_, err := NewRequestor(WithHTTPClient(srv.Client())).Request(context.Background(), baseRequest(srv.URL))
	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, err.Error(), "bad token")
}
