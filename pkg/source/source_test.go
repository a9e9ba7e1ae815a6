package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLiteral(t *testing.T) {
	raw, err := New().Resolve(context.Background(), `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))

	raw, err = New().Resolve(context.Background(), "s3://bucket/agent.json")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/agent.json", string(raw), "unsupported schemes are literal")
}

func TestResolveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"chains":{}}`), 0600))

	raw, err := New().Resolve(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, `{"chains":{}}`, string(raw))

	_, err = New().Resolve(context.Background(), "file://"+path+".missing")
	assert.Error(t, err)
}

func TestResolveHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/agent.json" {
			_, _ = w.Write([]byte(`{"relayer":true}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	r := &Resolver{Client: srv.Client()}
	raw, err := r.Resolve(context.Background(), srv.URL+"/agent.json")
	require.NoError(t, err)
	assert.Equal(t, `{"relayer":true}`, string(raw))

	_, err = r.Resolve(context.Background(), srv.URL+"/missing.json")
	assert.Error(t, err)
}
