package rpc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptions_Defaults(t *testing.T) {
	opts, err := NewOptions("ipa.example.test")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, "go-freeipa", opts.UserAgent)
	assert.Equal(t, "/etc/krb5.conf", opts.KerberosConfig)
	assert.Empty(t, opts.CertificatePath)
	assert.Empty(t, opts.APIVersion)
}

func TestNewOptions_WithOptions(t *testing.T) {
	opts, err := NewOptions("ipa.example.test",
		WithCertificatePath("/etc/ipa/ca.crt"),
		WithAPIVersion("2.254"),
		WithTimeout(5*time.Second),
		WithRealm("EXAMPLE.TEST"),
	)
	require.NoError(t, err)

	assert.Equal(t, "/etc/ipa/ca.crt", opts.CertificatePath)
	assert.Equal(t, "2.254", opts.APIVersion)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, "EXAMPLE.TEST", opts.Realm)
}

func TestOptions_Host(t *testing.T) {
	tests := []struct {
		name        string
		server      string
		wantHost    string
		wantBaseURL string
		wantErr     bool
	}{
		{name: "hostname", server: "ipa.example.test", wantHost: "ipa.example.test", wantBaseURL: "https://ipa.example.test"},
		{name: "https url", server: "https://ipa.example.test/", wantHost: "ipa.example.test", wantBaseURL: "https://ipa.example.test"},
		{name: "with port", server: "127.0.0.1:8443", wantHost: "127.0.0.1:8443", wantBaseURL: "https://127.0.0.1:8443"},
		{name: "https with port", server: "https://ipa.example.test:4443", wantHost: "ipa.example.test:4443", wantBaseURL: "https://ipa.example.test:4443"},
		{name: "plain http rejected", server: "http://ipa.example.test", wantErr: true},
		{name: "empty", server: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &Options{Server: tt.server}
			err := opts.Validate()
			if tt.wantErr {
				var cfgErr *ConfigurationError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)

			host, err := opts.Host()
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantBaseURL, opts.BaseURL())
			assert.Equal(t, tt.wantBaseURL+"/ipa/ui/index.html", opts.Referer())
		})
	}
}

func TestOptions_Hostname(t *testing.T) {
	opts := &Options{Server: "https://ipa.example.test:4443"}
	assert.Equal(t, "ipa.example.test", opts.Hostname())
}

func TestOptions_NegativeTimeout(t *testing.T) {
	_, err := NewOptions("ipa.example.test", WithTimeout(-time.Second))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "timeout", cfgErr.Field)
}

func TestLoadIPAConfig(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "default.conf")
	require.NoError(t, os.WriteFile(confPath, []byte(`#File modified by ipa-client-install

[global]
basedn = dc=example,dc=test
realm = EXAMPLE.TEST
domain = example.test
server = ipa1.example.test
host = client.example.test
xmlrpc_uri = https://ipa1.example.test/ipa/xml
enable_ra = True
`), 0o600))

	cfg, err := LoadIPAConfig(confPath)
	require.NoError(t, err)
	assert.Equal(t, "ipa1.example.test", cfg.Server)
	assert.Equal(t, "EXAMPLE.TEST", cfg.Realm)
	assert.Equal(t, "example.test", cfg.Domain)
	assert.Equal(t, "dc=example,dc=test", cfg.BaseDN)
	assert.Empty(t, cfg.CACertPath)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ca.crt"), []byte("placeholder"), 0o600))
	cfg, err = LoadIPAConfig(confPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ca.crt"), cfg.CACertPath)

	opts, err := cfg.Options(WithAPIVersion("2.254"))
	require.NoError(t, err)
	assert.Equal(t, "ipa1.example.test", opts.Server)
	assert.Equal(t, filepath.Join(dir, "ca.crt"), opts.CertificatePath)
	assert.Equal(t, "EXAMPLE.TEST", opts.Realm)
	assert.Equal(t, "2.254", opts.APIVersion)
}

func TestLoadIPAConfig_ServerFromXMLRPCURI(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), "default.conf")
	require.NoError(t, os.WriteFile(confPath, []byte("[global]\nrealm = EXAMPLE.TEST\nxmlrpc_uri = https://ipa2.example.test/ipa/xml\n"), 0o600))

	cfg, err := LoadIPAConfig(confPath)
	require.NoError(t, err)
	assert.Equal(t, "ipa2.example.test", cfg.Server)
}

func TestLoadIPAConfig_Missing(t *testing.T) {
	_, err := LoadIPAConfig(filepath.Join(t.TempDir(), "nope.conf"))
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
