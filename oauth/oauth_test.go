package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeURL(t *testing.T) {
	raw := AuthorizeURL("client-1", "http://127.0.0.1:8765/callback", "abc")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "id.twitch.tv", u.Host)
	q := u.Query()
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "http://127.0.0.1:8765/callback", q.Get("redirect_uri"))
	assert.Equal(t, "id_token", q.Get("response_type"))
	assert.Equal(t, "openid", q.Get("scope"))
	assert.Equal(t, "abc", q.Get("nonce"))
}

func TestIDTokenFromRedirect(t *testing.T) {
	tok, err := IDTokenFromRedirect("http://127.0.0.1/callback#id_token=aaa.bbb.ccc&scope=openid")
	require.NoError(t, err)
	assert.Equal(t, "aaa.bbb.ccc", tok)

	_, err = IDTokenFromRedirect("http://127.0.0.1/callback#scope=openid")
	assert.ErrorIs(t, err, ErrNoIDToken)

	_, err = IDTokenFromRedirect("http://127.0.0.1/callback?error=access_denied&error_description=user+cancelled")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "access_denied", pe.Code)
	assert.Equal(t, "user cancelled", pe.Description)
}

// browser simulates the user completing the flow by loading the callback
// page and posting the location back.
func browser(t *testing.T, l *Loopback, fragment string) Opener {
	return func(string) error {
		go func() {
			page, err := http.Get(l.RedirectURL())
			if err != nil {
				t.Errorf("loading callback page: %v", err)
				return
			}
			html, _ := io.ReadAll(page.Body)
			page.Body.Close()
			if !strings.Contains(string(html), "/callback/complete") {
				t.Errorf("callback page does not relay the fragment")
			}
			body, _ := json.Marshal(map[string]string{"url": l.RedirectURL() + "#" + fragment})
			resp, err := http.Post(strings.TrimSuffix(l.RedirectURL(), "/callback")+"/callback/complete", "application/json", bytes.NewReader(body))
			if err != nil {
				t.Errorf("posting callback: %v", err)
				return
			}
			resp.Body.Close()
		}()
		return nil
	}
}

func TestLoopbackReturnsRedirect(t *testing.T) {
	l := NewLoopback("127.0.0.1:0")
	require.NoError(t, l.Start())
	t.Cleanup(func() { l.Close() })
	l.open = browser(t, l, "id_token=tok&state=x")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	redirect, err := l.Launch(ctx, AuthorizeURL("c", l.RedirectURL(), "n"))
	require.NoError(t, err)

	tok, err := IDTokenFromRedirect(redirect)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

func TestLoopbackCancelledFlow(t *testing.T) {
	l := NewLoopback("127.0.0.1:0", WithOpener(func(string) error { return nil }))
	t.Cleanup(func() { l.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Launch(ctx, "https://id.twitch.tv/oauth2/authorize")
	assert.ErrorIs(t, err, ErrNoRedirect)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "no redirect URL returned: context canceled", err.Error())
}

func TestLoopbackOpenerFailure(t *testing.T) {
	l := NewLoopback("127.0.0.1:0", WithOpener(func(string) error { return errors.New("no browser") }))
	t.Cleanup(func() { l.Close() })
	_, err := l.Launch(context.Background(), "https://id.twitch.tv/oauth2/authorize")
	assert.ErrorContains(t, err, "no browser")
}

func TestLoopbackRejectsUnexpectedCallback(t *testing.T) {
	l := NewLoopback("127.0.0.1:0")
	require.NoError(t, l.Start())
	t.Cleanup(func() { l.Close() })

	resp, err := http.Post(strings.TrimSuffix(l.RedirectURL(), "/callback")+"/callback/complete", "application/json",
		strings.NewReader(`{"url":"http://x/#id_token=t"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLoopbackStartThenImmediateClose(t *testing.T) {
	for i := 0; i < 200; i++ {
		l := NewLoopback("127.0.0.1:0")
		require.NoError(t, l.Start())
		addr := strings.TrimPrefix(strings.TrimSuffix(l.RedirectURL(), callbackPath), "http://")
		require.NoError(t, l.Close())
		require.NoError(t, l.Close())

		// The listener is released even when Serve never ran.
		_, err := net.DialTimeout("tcp", addr, time.Second)
		require.Error(t, err, "iteration %d", i)
	}
}

func TestLoopbackRestartsAfterClose(t *testing.T) {
	l := NewLoopback("127.0.0.1:0")
	require.NoError(t, l.Start())
	require.NoError(t, l.Close())
	require.NoError(t, l.Start())
	t.Cleanup(func() { l.Close() })

	resp, err := http.Get(l.RedirectURL())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
