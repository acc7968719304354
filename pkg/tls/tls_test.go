package tls

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCert(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cert := filepath.Join(dir, "status.crt")
	key := filepath.Join(dir, "status.key")
	require.NoError(t, GenerateSelfSignedCert(cert, key, "rrfloop", "10.0.0.5", "lab-host"))
	return cert, key
}

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, key := writeCert(t)

	info, err := os.Stat(key)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	pair, err := tls.LoadX509KeyPair(cert, key)
	require.NoError(t, err)
	require.Len(t, pair.Certificate, 1)
}

func TestLoadServerConfig(t *testing.T) {
	cert, key := writeCert(t)

	tests := []struct {
		name       string
		cfg        ServerConfig
		wantErr    bool
		clientAuth tls.ClientAuthType
	}{
		{"server only", ServerConfig{CertFile: cert, KeyFile: key}, false, tls.NoClientCert},
		{"mutual", ServerConfig{CertFile: cert, KeyFile: key, ClientCAFile: cert}, false, tls.RequireAndVerifyClientCert},
		{"missing key", ServerConfig{CertFile: cert}, true, 0},
		{"bad ca", ServerConfig{CertFile: cert, KeyFile: key, ClientCAFile: key}, true, 0},
		{"missing files", ServerConfig{CertFile: "nope.crt", KeyFile: "nope.key"}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadServerConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint16(tls.VersionTLS12), got.MinVersion)
			assert.Equal(t, tt.clientAuth, got.ClientAuth)
		})
	}
}

func TestServerConfigEnabled(t *testing.T) {
	assert.False(t, ServerConfig{}.Enabled())
	assert.True(t, ServerConfig{CertFile: "a"}.Enabled())
}

func TestClientAgainstServer(t *testing.T) {
	cert, key := writeCert(t)
	serverCfg, err := LoadServerConfig(ServerConfig{CertFile: cert, KeyFile: key})
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	server.TLS = serverCfg
	server.StartTLS()
	defer server.Close()

	roots, err := loadCertPool(cert)
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12},
	}}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
