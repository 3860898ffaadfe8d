package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metasearch/packages/domain"
	"metasearch/packages/request"
)

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	if opts.UserAgent == "" {
		opts.UserAgent = "metasearch-test"
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestExecuteDecodesCompressedBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		switch r.URL.Path {
		case "/gzip":
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(&buf)
			_, _ = gz.Write([]byte("gzip body"))
			_ = gz.Close()
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			br := brotli.NewWriter(&buf)
			_, _ = br.Write([]byte("brotli body"))
			_ = br.Close()
		default:
			buf.WriteString("plain body")
		}
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newClient(t, Options{})
	tests := map[string]string{"/gzip": "gzip body", "/br": "brotli body", "/plain": "plain body"}
	for path, want := range tests {
		resp, err := c.Execute(context.Background(), &request.Request{URL: srv.URL + path})
		require.NoError(t, err, path)
		assert.Equal(t, want, resp.Text(), path)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestExecutePostsFormInOrderAndKeepsCookies(t *testing.T) {
	var gotBody, gotType, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			b, _ := io.ReadAll(r.Body)
			gotBody, gotType, gotUA = string(b), r.Header.Get("Content-Type"), r.Header.Get("User-Agent")
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		case "/search":
			if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
				_, _ = w.Write([]byte("logged in"))
				return
			}
			_, _ = w.Write([]byte("anonymous"))
		}
	}))
	defer srv.Close()

	c := newClient(t, Options{})
	_, err := c.Execute(context.Background(), &request.Request{
		Method: "POST",
		URL:    srv.URL + "/login",
		Kind:   request.BodyForm,
		Form:   []request.KV{{Name: "user", Value: "bob"}, {Name: "pass", Value: "a b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "user=bob&pass=a+b", gotBody)
	assert.Equal(t, "application/x-www-form-urlencoded", gotType)
	assert.Equal(t, "metasearch-test", gotUA)

	resp, err := c.Execute(context.Background(), &request.Request{URL: srv.URL + "/search"})
	require.NoError(t, err)
	assert.Equal(t, "logged in", resp.Text())
}

func TestExecuteReturnsServerErrorsAsResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := newClient(t, Options{}).Execute(context.Background(), &request.Request{URL: srv.URL})
	require.NoError(t, err)
	assert.True(t, resp.IsServerError())
}

func TestExecuteBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := newClient(t, Options{MaxBodyBytes: 16}).Execute(context.Background(), &request.Request{URL: srv.URL, Indexer: "demo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestExecuteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := newClient(t, Options{Timeout: time.Second}).Execute(context.Background(), &request.Request{URL: addr})
	assert.ErrorIs(t, err, domain.ErrTransport)

	_, err = newClient(t, Options{}).Execute(context.Background(), &request.Request{URL: "::not a url"})
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestHostLimiter(t *testing.T) {
	assert.Nil(t, NewHostLimiter(0, time.Second))
	var disabled *HostLimiter
	assert.NoError(t, disabled.Wait(context.Background(), "x"))

	l := NewHostLimiter(1, time.Hour)
	require.NoError(t, l.Wait(context.Background(), "a.example"))
	require.NoError(t, l.Wait(context.Background(), "B.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "A.EXAMPLE"))
}
