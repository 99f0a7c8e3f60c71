package cli

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	freeipa "github.com/isometry/go-freeipa"
	"github.com/isometry/go-freeipa/rpc"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "IPACTL"

// Config is the resolved CLI configuration.
// Precedence is flags, then IPACTL_* variables, then the config file.
type Config struct {
	Server          string        `mapstructure:"server"`
	Domain          string        `mapstructure:"domain"`
	IPAConfig       string        `mapstructure:"ipa-config"`
	CertificatePath string        `mapstructure:"certificate-path"`
	APIVersion      string        `mapstructure:"api-version"`
	Timeout         time.Duration `mapstructure:"timeout"`

	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	Realm          string `mapstructure:"realm"`
	KerberosKeytab string `mapstructure:"kerberos-keytab"`
	KerberosCCache string `mapstructure:"kerberos-ccache"`
	KerberosConfig string `mapstructure:"kerberos-config"`
}

func addConnectionFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default $HOME/.config/ipactl/config.yaml)")
	flags.String("server", "", "FreeIPA server hostname")
	flags.String("domain", "", "discover the server through DNS SRV records for this domain")
	flags.String("ipa-config", "", "FreeIPA client configuration (default "+rpc.DefaultIPAConfigPath+")")
	flags.String("certificate-path", "", "CA certificate bundle (PEM)")
	flags.String("api-version", "", "pin the API version sent with each command")
	flags.Duration("timeout", 30*time.Second, "HTTP timeout")
	flags.StringP("username", "u", "", "login name for password authentication")
	flags.String("password", "", "password; prefer "+EnvPrefix+"_PASSWORD")
	flags.String("realm", "", "Kerberos realm")
	flags.String("kerberos-keytab", "", "Kerberos keytab")
	flags.String("kerberos-ccache", "", "Kerberos credential cache")
	flags.String("kerberos-config", "", "krb5.conf path")
}

// newViper layers the config file and environment under flags.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/ipactl")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &rpc.ConfigurationError{Field: "config", Message: "failed to read config file", Cause: err}
		}
	}
	return v, nil
}

// LoadConfig resolves the configuration for a command's flag set.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	v, err := newViper(flags)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &rpc.ConfigurationError{Message: "failed to decode configuration", Cause: err}
	}
	return cfg, nil
}

func (c *Config) clientOptions() []rpc.Option {
	opts := []rpc.Option{
		rpc.WithTimeout(c.Timeout),
		rpc.WithAPIVersion(c.APIVersion),
	}
	if c.CertificatePath != "" {
		opts = append(opts, rpc.WithCertificatePath(c.CertificatePath))
	}
	if c.Realm != "" {
		opts = append(opts, rpc.WithRealm(c.Realm))
	}
	return append(opts, func(o *rpc.Options) {
		if c.KerberosConfig != "" {
			o.KerberosConfig = c.KerberosConfig
		}
		o.KerberosKeytab = c.KerberosKeytab
		o.KerberosCCache = c.KerberosCCache
	})
}

// Options builds client options from, in order of preference, an explicit
// server, SRV discovery for Domain, or the FreeIPA client configuration.
func (c *Config) Options(ctx context.Context) (*rpc.Options, error) {
	switch {
	case c.Server != "":
		return rpc.NewOptions(c.Server, c.clientOptions()...)
	case c.Domain != "":
		tflog.Debug(ctx, "Discovering FreeIPA server", map[string]any{"domain": c.Domain})
		return freeipa.DiscoverOptions(ctx, c.Domain, c.clientOptions()...)
	default:
		ipaConf, err := rpc.LoadIPAConfig(c.IPAConfig)
		if err != nil {
			return nil, &rpc.ConfigurationError{
				Field:   "server",
				Message: "no server given and no usable FreeIPA client configuration; use --server or --domain",
				Cause:   err,
			}
		}
		return ipaConf.Options(c.clientOptions()...)
	}
}

// Connect opens an authenticated session: password login when a password is
// configured, Kerberos otherwise.
func (c *Config) Connect(ctx context.Context, clientOpts ...rpc.ClientOption) (*freeipa.FreeIPA, error) {
	opts, err := c.Options(ctx)
	if err != nil {
		return nil, err
	}

	ipa, err := freeipa.NewWithContext(ctx, opts, clientOpts...)
	if err != nil {
		return nil, err
	}

	if c.Password != "" {
		if c.Username == "" {
			return nil, &rpc.ConfigurationError{Field: "username", Message: "a password requires a username"}
		}
		tflog.Debug(ctx, "Logging in with password", map[string]any{"username": c.Username})
		err = ipa.Login(ctx, c.Username, c.Password)
	} else {
		tflog.Debug(ctx, "Logging in with Kerberos", map[string]any{"principal": c.Username})
		err = ipa.LoginKerberos(ctx, rpc.KerberosCredentials{Username: c.Username})
	}
	if err != nil {
		return nil, err
	}
	return ipa, nil
}
