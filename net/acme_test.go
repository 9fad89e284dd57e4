package net

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSetsRequestHeaders(t *testing.T) {
	var gotUA, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	c, err := New(Config{})
	require.NoError(t, err)

	resp, err := c.GetURL(context.Background(), server.URL)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotUA, "certmint "), "unexpected User-Agent %q", gotUA)
	assert.Equal(t, "en-us", gotLang)
	assert.Equal(t, []byte("hello"), resp.Body)
}

func TestPostURLUsesJOSEContentType(t *testing.T) {
	var gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := New(Config{})
	require.NoError(t, err)

	_, err = c.PostURL(context.Background(), server.URL, []byte(`{"protected":"x"}`))
	require.NoError(t, err)

	assert.Equal(t, "application/jose+json", gotContentType)
	assert.Equal(t, `{"protected":"x"}`, gotBody)
}

func TestHeadURLDiscardsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Replay-Nonce", "abc123")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c, err := New(Config{})
	require.NoError(t, err)

	resp, err := c.HeadURL(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "abc123", resp.Header.Get("Replay-Nonce"))
}

func TestNewRejectsBadCABundle(t *testing.T) {
	_, err := New(Config{CABundlePath: filepath.Join(t.TempDir(), "absent.pem")})
	require.Error(t, err)

	junk := filepath.Join(t.TempDir(), "junk.pem")
	require.NoError(t, os.WriteFile(junk, []byte("not a pem bundle"), 0o600))
	_, err = New(Config{CABundlePath: junk})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CA certificates")
}
