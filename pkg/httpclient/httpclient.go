// pkg/httpclient/httpclient.go

package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"os"
	"time"

	cerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds the transport knobs a provisioning run can change.
type Config struct {
	// Timeout bounds a whole request including the body. Zero leaves
	// requests bounded only by their context.
	Timeout    time.Duration
	UserAgent  string
	RootCAFile string
}

// New builds an HTTP client whose transport is traced with otelhttp.
func New(cfg Config) (*http.Client, error) {
	tlsConfig, err := SecureTLSConfig(cfg.RootCAFile)
	if err != nil {
		return nil, err
	}

	base := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsConfig,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		MaxIdleConnsPerHost:   4,
	}

	var rt http.RoundTripper = otelhttp.NewTransport(base)
	if cfg.UserAgent != "" {
		rt = &userAgentTransport{next: rt, agent: cfg.UserAgent}
	}

	return &http.Client{Timeout: cfg.Timeout, Transport: rt}, nil
}

// SecureTLSConfig requires TLS 1.2 and optionally trusts an extra CA bundle.
func SecureTLSConfig(caCertPath string) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCertPath == "" {
		return tlsConfig, nil
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to read CA certificate from %s", caCertPath)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, cerr.Newf("failed to parse CA certificate from %s", caCertPath)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

type userAgentTransport struct {
	next  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(req)
}
