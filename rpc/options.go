package rpc

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

const (
	loginPasswordPath = "/ipa/session/login_password"
	loginKerberosPath = "/ipa/session/login_kerberos"
	jsonPath          = "/ipa/session/json"
	refererPath       = "/ipa/ui/index.html"
)

// Options holds the client configuration. The client keeps its own copy, so
// changing an Options value after New has no effect on an existing client.
type Options struct {
	// Server is the FreeIPA hostname, optionally with a port or an https:// prefix.
	Server string `json:"server" mapstructure:"server"`

	// CertificatePath points to a PEM file holding the CA that signed the
	// server certificate. Empty means the system trust store.
	CertificatePath string `json:"certificate_path" mapstructure:"certificate_path"`

	// APIVersion pins the "version" option on every request when set.
	APIVersion string `json:"api_version" mapstructure:"api_version"`

	Timeout   time.Duration `json:"timeout" mapstructure:"timeout" default:"30s"`
	UserAgent string        `json:"user_agent" mapstructure:"user_agent" default:"go-freeipa"`

	// Kerberos settings used by LoginKerberos
	Realm          string `json:"realm" mapstructure:"realm"`
	KerberosConfig string `json:"kerberos_config" mapstructure:"kerberos_config" default:"/etc/krb5.conf"`
	KerberosKeytab string `json:"kerberos_keytab" mapstructure:"kerberos_keytab"`
	KerberosCCache string `json:"kerberos_ccache" mapstructure:"kerberos_ccache"`
}

// Option mutates Options during construction.
type Option func(*Options)

// WithCertificatePath sets the CA certificate file.
func WithCertificatePath(path string) Option {
	return func(o *Options) {
		o.CertificatePath = path
	}
}

// WithAPIVersion pins the API version sent with each request.
func WithAPIVersion(version string) Option {
	return func(o *Options) {
		o.APIVersion = version
	}
}

// WithTimeout sets the HTTP timeout for every request.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithRealm sets the Kerberos realm.
func WithRealm(realm string) Option {
	return func(o *Options) {
		o.Realm = realm
	}
}

// NewOptions returns Options for server with defaults applied.
func NewOptions(server string, opts ...Option) (*Options, error) {
	o := &Options{Server: server}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// ApplyDefaults fills zero-valued fields from their default tags.
func (o *Options) ApplyDefaults() error {
	if err := defaults.Set(o); err != nil {
		return &ConfigurationError{Message: "failed to apply defaults", Cause: err}
	}
	return nil
}

// Validate checks the options without touching the filesystem or network.
// The certificate path is checked when the client builds its transport.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Server) == "" {
		return &ConfigurationError{Field: "server", Message: "server cannot be empty"}
	}
	if _, err := o.Host(); err != nil {
		return err
	}
	if o.Timeout < 0 {
		return &ConfigurationError{Field: "timeout", Message: fmt.Sprintf("timeout cannot be negative: %s", o.Timeout)}
	}
	return nil
}

// Host returns the server as host[:port], stripping any https:// prefix.
func (o *Options) Host() (string, error) {
	server := strings.TrimSpace(o.Server)
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}

	u, err := url.Parse(server)
	if err != nil {
		return "", &ConfigurationError{Field: "server", Message: "invalid server", Cause: err}
	}
	if u.Scheme != "https" {
		return "", &ConfigurationError{Field: "server", Message: fmt.Sprintf("unsupported scheme %q, FreeIPA requires https", u.Scheme)}
	}
	if u.Hostname() == "" {
		return "", &ConfigurationError{Field: "server", Message: fmt.Sprintf("no hostname found in %q", o.Server)}
	}
	if port := u.Port(); port != "" {
		return net.JoinHostPort(u.Hostname(), port), nil
	}
	return u.Hostname(), nil
}

// Hostname returns the server hostname without a port.
func (o *Options) Hostname() string {
	host, err := o.Host()
	if err != nil {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// BaseURL returns https://<host>.
func (o *Options) BaseURL() string {
	host, err := o.Host()
	if err != nil {
		return ""
	}
	return "https://" + host
}

// Referer returns the UI URL the server expects in the Referer header.
func (o *Options) Referer() string {
	return o.BaseURL() + refererPath
}

func (o *Options) endpoint(path string) string {
	return o.BaseURL() + path
}
