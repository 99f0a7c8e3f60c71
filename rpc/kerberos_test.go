package rpc

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDoer struct {
	mock.Mock
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

func writeKrb5Conf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "krb5.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const krb5ConfWithRealm = `[libdefaults]
 default_realm = EXAMPLE.TEST
 dns_lookup_kdc = false

[realms]
 EXAMPLE.TEST = {
  kdc = ipa.example.test
 }
`

func newKerberosTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	o, err := NewOptions("ipa.example.test", opts...)
	require.NoError(t, err)
	c, err := NewClient(o)
	require.NoError(t, err)
	return c
}

func TestSplitPrincipal(t *testing.T) {
	tests := []struct {
		principal    string
		defaultRealm string
		wantUser     string
		wantRealm    string
	}{
		{"admin@example.test", "", "admin", "EXAMPLE.TEST"},
		{"admin@EXAMPLE.TEST", "OTHER.TEST", "admin", "EXAMPLE.TEST"},
		{"admin", "example.test", "admin", "EXAMPLE.TEST"},
		{"admin@", "example.test", "admin@", "EXAMPLE.TEST"},
		{"", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.principal, func(t *testing.T) {
			user, realm := splitPrincipal(tt.principal, tt.defaultRealm)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantRealm, realm)
		})
	}
}

func TestDefaultCCachePath(t *testing.T) {
	t.Setenv("KRB5CCNAME", "FILE:/tmp/krb5cc_test")
	assert.Equal(t, "/tmp/krb5cc_test", defaultCCachePath())
}

func TestNewKerberosClient_MissingKrb5Conf(t *testing.T) {
	c := newKerberosTestClient(t, func(o *Options) {
		o.KerberosConfig = "/nonexistent/krb5.conf"
	})

	_, err := c.newKerberosClient(KerberosCredentials{Username: "admin", Password: "secret"})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "kerberos_config", cfgErr.Field)
	assert.Contains(t, err.Error(), "Kerberos configuration file not found at /nonexistent/krb5.conf")
}

func TestNewKerberosClient_CredentialSelection(t *testing.T) {
	t.Setenv("KRB5CCNAME", filepath.Join(t.TempDir(), "no-such-ccache"))

	withRealm := writeKrb5Conf(t, krb5ConfWithRealm)
	withoutRealm := writeKrb5Conf(t, "[libdefaults]\n dns_lookup_kdc = false\n")

	tests := []struct {
		name      string
		krb5conf  string
		creds     KerberosCredentials
		wantField string
		wantErr   string
	}{
		{
			name:      "no principal without a credential cache",
			krb5conf:  withRealm,
			wantField: "username",
		},
		{
			name:      "no realm anywhere",
			krb5conf:  withoutRealm,
			creds:     KerberosCredentials{Username: "admin", Password: "secret"},
			wantField: "realm",
		},
		{
			name:     "missing keytab and no password",
			krb5conf: withRealm,
			creds:    KerberosCredentials{Username: "admin", Keytab: "/nonexistent/admin.keytab"},
			wantErr:  "no suitable Kerberos credentials found",
		},
		{
			name:     "password with default realm",
			krb5conf: withRealm,
			creds:    KerberosCredentials{Username: "admin", Password: "secret"},
		},
		{
			name:     "password with realm in principal",
			krb5conf: withoutRealm,
			creds:    KerberosCredentials{Username: "admin@example.test", Password: "secret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newKerberosTestClient(t, func(o *Options) { o.KerberosConfig = tt.krb5conf })

			krb, err := c.newKerberosClient(tt.creds)
			switch {
			case tt.wantField != "":
				var cfgErr *ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, tt.wantField, cfgErr.Field)
			case tt.wantErr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			default:
				require.NoError(t, err)
				require.NotNil(t, krb)
				assert.Equal(t, "EXAMPLE.TEST", krb.Credentials.Domain())
				assert.Equal(t, "admin", krb.Credentials.UserName())
			}
		})
	}
}

func TestLoginKerberos_ConfigurationErrorSendsNothing(t *testing.T) {
	doer := &mockDoer{}
	o, err := NewOptions("ipa.example.test", func(o *Options) { o.KerberosConfig = "/nonexistent/krb5.conf" })
	require.NoError(t, err)
	c, err := NewClient(o, WithHTTPDoer(doer))
	require.NoError(t, err)

	err = c.LoginKerberos(context.Background(), KerberosCredentials{Username: "admin", Password: "secret"})

	assert.Equal(t, ErrorCategoryConfiguration, GetErrorCategory(err))
	assert.False(t, c.IsAuthenticated())
	doer.AssertNotCalled(t, "Do", mock.Anything)
}
