package rpc

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// DefaultIPAConfigPath is where ipa-client-install writes the client configuration.
const DefaultIPAConfigPath = "/etc/ipa/default.conf"

// IPAConfig is the [global] section of a FreeIPA client configuration file.
type IPAConfig struct {
	Server    string `ini:"server"`
	Realm     string `ini:"realm"`
	Domain    string `ini:"domain"`
	BaseDN    string `ini:"basedn"`
	XMLRPCURI string `ini:"xmlrpc_uri"`

	// CACertPath is the ca.crt next to the loaded file when it exists.
	CACertPath string `ini:"-"`
}

// LoadIPAConfig reads a FreeIPA client configuration such as /etc/ipa/default.conf.
func LoadIPAConfig(path string) (*IPAConfig, error) {
	if path == "" {
		path = DefaultIPAConfigPath
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, &ConfigurationError{Field: "ipa_config", Message: "failed to load " + path, Cause: err}
	}

	cfg := &IPAConfig{}
	if err := file.Section("global").MapTo(cfg); err != nil {
		return nil, &ConfigurationError{Field: "ipa_config", Message: "failed to parse [global] in " + path, Cause: err}
	}

	// Older installs only record the XML-RPC endpoint.
	if cfg.Server == "" && cfg.XMLRPCURI != "" {
		if u, err := url.Parse(cfg.XMLRPCURI); err == nil {
			cfg.Server = u.Host
		}
	}

	caPath := filepath.Join(filepath.Dir(path), "ca.crt")
	if _, err := os.Stat(caPath); err == nil {
		cfg.CACertPath = caPath
	}

	return cfg, nil
}

// Options converts the configuration into client Options with defaults applied.
func (c *IPAConfig) Options(opts ...Option) (*Options, error) {
	base := []Option{
		WithCertificatePath(c.CACertPath),
		WithRealm(strings.ToUpper(c.Realm)),
	}
	return NewOptions(c.Server, append(base, opts...)...)
}
