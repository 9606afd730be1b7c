package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercore/ledgerd/service/ledger"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(map[string]ServiceEntry{
		"wallet":    {Address: "10.0.0.5", Port: 9293, SecretKey: "wallet-secret"},
		"validator": {SecretKey: "validator-secret"},
	})
	require.NoError(t, err)
	return registry
}

func TestNewRegistry(t *testing.T) {
	t.Run("rejects empty identities", func(t *testing.T) {
		_, err := NewRegistry(map[string]ServiceEntry{"": {SecretKey: "x"}})
		assert.Error(t, err)
	})

	t.Run("rejects empty secrets", func(t *testing.T) {
		_, err := NewRegistry(map[string]ServiceEntry{"wallet": {}})
		assert.Error(t, err)
	})

	t.Run("copies the input map", func(t *testing.T) {
		services := map[string]ServiceEntry{"wallet": {SecretKey: "s"}}
		registry, err := NewRegistry(services)
		require.NoError(t, err)

		services["intruder"] = ServiceEntry{SecretKey: "x"}
		_, ok := registry.Lookup("intruder")
		assert.False(t, ok)
	})
}

func TestParseRegistry(t *testing.T) {
	registry, err := ParseRegistry([]byte(`{
		"wallet": {"address": "10.0.0.5", "port": 9293, "secret_key": "wallet-secret"}
	}`))
	require.NoError(t, err)

	entry, ok := registry.Lookup("wallet")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", entry.Address)
	assert.Equal(t, 9293, entry.Port)

	_, err = ParseRegistry([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoadRegistryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"wallet": {"secret_key": "s"}}`), 0o600))

	registry, err := LoadRegistryFile(path)
	require.NoError(t, err)
	assert.Contains(t, registry.Identities(), "wallet")

	_, err = LoadRegistryFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	registry := testRegistry(t)

	t.Run("accepts matching credentials", func(t *testing.T) {
		assert.NoError(t, registry.Authenticate("wallet", "wallet-secret"))
	})

	t.Run("rejects unknown identities", func(t *testing.T) {
		err := registry.Authenticate("intruder", "wallet-secret")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ledger.ErrUnauthorized))
	})

	t.Run("rejects mismatched secrets", func(t *testing.T) {
		err := registry.Authenticate("wallet", "wrong")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ledger.ErrUnauthorized))
	})

	t.Run("rejects another service's secret", func(t *testing.T) {
		err := registry.Authenticate("wallet", "validator-secret")
		assert.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	registry := testRegistry(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var reached bool
	handler := Middleware(registry, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("passes authenticated calls through", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest("GET", "/api/v1/mempool", nil)
		req.Header.Set(IdentityHeader, "wallet")
		req.Header.Set(SecretHeader, "wallet-secret")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)
		assert.True(t, reached)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("rejects missing credentials", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest("GET", "/api/v1/mempool", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error": "unauthorized"}`, rr.Body.String())
	})

	t.Run("rejects bad secrets", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest("GET", "/api/v1/mempool", nil)
		req.Header.Set(IdentityHeader, "wallet")
		req.Header.Set(SecretHeader, "wrong")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
