package rpc

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
)

// buildCertPool returns the system pool, or a pool holding only the CA
// certificates in caCertFile.
func buildCertPool(caCertFile string) (*x509.CertPool, error) {
	if caCertFile == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, &ConfigurationError{Field: "certificate_path", Message: "failed to load system certificate pool", Cause: err}
		}
		return pool, nil
	}

	pem, err := os.ReadFile(caCertFile)
	if err != nil {
		return nil, &ConfigurationError{Field: "certificate_path", Message: "cannot read CA certificate file", Cause: err}
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, &ConfigurationError{Field: "certificate_path", Message: "no valid PEM certificates found in " + caCertFile}
	}
	return pool, nil
}

// buildTLSConfig returns a verifying TLS configuration for the server.
func buildTLSConfig(opts *Options) (*tls.Config, error) {
	pool, err := buildCertPool(opts.CertificatePath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    pool,
	}, nil
}

// newHTTPClient builds the default transport. Cookies are handled by the
// session, so the returned client has no jar.
func newHTTPClient(opts *Options) (*http.Client, error) {
	tlsConfig, err := buildTLSConfig(opts)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}, nil
}
