package rpc

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// KerberosCredentials selects how LoginKerberos obtains a ticket.
// Priority order: credential cache, keytab, password.
type KerberosCredentials struct {
	Username string // Principal name, optionally user@REALM
	Password string
	Keytab   string // Path to a keytab file
	CCache   string // Path to a credential cache
}

// LoginKerberos opens a session through SPNEGO negotiation against
// /ipa/session/login_kerberos.
func (c *Client) LoginKerberos(ctx context.Context, creds KerberosCredentials) error {
	logCtx := c.getLoggingContext()

	return LogOperation(logCtx, "login_kerberos", map[string]any{
		"username": creds.Username,
	}, func() error {
		if err := c.resetSession(); err != nil {
			return err
		}

		krbClient, err := c.newKerberosClient(creds)
		if err != nil {
			return err
		}
		defer krbClient.Destroy()

		if err := krbClient.AffirmLogin(); err != nil {
			return &AuthenticationError{StatusCode: http.StatusUnauthorized, Message: "Kerberos login failed", Detail: err.Error()}
		}

		// spnego.NewClient installs its own jar and redirect hook, so it gets
		// a private http.Client sharing our transport.
		negotiator := spnego.NewClient(krbClient, &http.Client{
			Transport: c.httpClient.Transport,
			Timeout:   c.httpClient.Timeout,
		}, "")

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.endpoint(loginKerberosPath), nil)
		if err != nil {
			return &TransportError{Operation: "login_kerberos", Cause: err}
		}
		req.Header.Set("Accept", "text/plain")

		resp, err := c.doWith(negotiator, req)
		if err != nil {
			return &TransportError{Operation: "login_kerberos", Cause: err}
		}
		defer resp.Body.Close()

		return c.completeLogin(logCtx, resp, creds.Username)
	})
}

// newKerberosClient creates a gokrb5 client from the first usable credential source.
func (c *Client) newKerberosClient(creds KerberosCredentials) (*krb5client.Client, error) {
	krb5confPath := c.options.KerberosConfig
	if !fileExists(krb5confPath) {
		return nil, &ConfigurationError{
			Field:   "kerberos_config",
			Message: fmt.Sprintf("Kerberos configuration file not found at %s", krb5confPath),
		}
	}
	cfg, err := krb5config.Load(krb5confPath)
	if err != nil {
		return nil, &ConfigurationError{Field: "kerberos_config", Message: "failed to parse " + krb5confPath, Cause: err}
	}

	username, realm := splitPrincipal(creds.Username, c.options.Realm)
	if realm == "" {
		realm = cfg.LibDefaults.DefaultRealm
	}

	ccachePath := firstNonEmpty(creds.CCache, c.options.KerberosCCache)
	if ccachePath == "" && creds.Password == "" && creds.Keytab == "" && c.options.KerberosKeytab == "" {
		ccachePath = defaultCCachePath()
	}
	if fileExists(ccachePath) {
		cc, err := credentials.LoadCCache(ccachePath)
		if err != nil {
			return nil, &ConfigurationError{Field: "kerberos_ccache", Message: "failed to load " + ccachePath, Cause: err}
		}
		return krb5client.NewFromCCache(cc, cfg, krb5client.DisablePAFXFAST(true))
	}

	if username == "" {
		return nil, &ConfigurationError{Field: "username", Message: "username (principal) is required for Kerberos authentication"}
	}
	if realm == "" {
		return nil, &ConfigurationError{Field: "realm", Message: "kerberos realm is required (set realm or include it in the username)"}
	}

	if keytabPath := firstNonEmpty(creds.Keytab, c.options.KerberosKeytab); fileExists(keytabPath) {
		kt, err := keytab.Load(keytabPath)
		if err != nil {
			return nil, &ConfigurationError{Field: "kerberos_keytab", Message: "failed to load " + keytabPath, Cause: err}
		}
		return krb5client.NewWithKeytab(username, realm, kt, cfg, krb5client.DisablePAFXFAST(true)), nil
	}

	if creds.Password != "" {
		return krb5client.NewWithPassword(username, realm, creds.Password, cfg, krb5client.DisablePAFXFAST(true)), nil
	}

	return nil, &ConfigurationError{
		Message: "no suitable Kerberos credentials found: provide a credential cache, keytab or password",
	}
}

// splitPrincipal separates user@REALM, falling back to defaultRealm.
func splitPrincipal(principal, defaultRealm string) (string, string) {
	if user, realm, ok := strings.Cut(principal, "@"); ok && realm != "" {
		return user, strings.ToUpper(realm)
	}
	return principal, strings.ToUpper(defaultRealm)
}

// defaultCCachePath returns the default credential cache location.
func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
