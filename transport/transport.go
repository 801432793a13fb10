package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"gateway/config"
)

// Defaults applied when the transport configuration leaves a field unset.
const (
	DefaultDialTimeout         = 30 * time.Second
	DefaultKeepAlive           = 30 * time.Second
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultMaxIdleConns        = 100
)

// Caronte is the upstream connection engine of a proxy target. It applies
// the target's header rules and hands the request to a long-lived
// http.Transport, which opens independent upstream connections per call and
// is safe for concurrent use.
type Caronte struct {
	RT      http.RoundTripper    // The underlying RoundTripper to execute requests.
	Options *config.ProxyOptions // Header rules of the target.
}

// New creates the engine of a proxy target.
//
// Parameters:
// - options: The proxy target options; Options.Transport selects the transport settings.
//
// Returns:
// - *Caronte: The engine.
// - error: An error if the TLS material could not be loaded.
func New(options *config.ProxyOptions) (*Caronte, error) {
	var cfg config.HTTPTransportConfig
	if options.Transport != nil {
		cfg = options.Transport.HTTP
	}

	rt, err := CreateTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &Caronte{RT: rt, Options: options}, nil
}

// RoundTrip executes a single HTTP transaction after manipulating headers.
//
// Parameters:
// - req: The HTTP request to be executed.
//
// Returns:
// - *http.Response: The HTTP response received.
// - error: An error if the request failed.
func (t *Caronte) RoundTrip(req *http.Request) (*http.Response, error) {
	t.AddHeaders(req)
	return t.RT.RoundTrip(req)
}

// AddHeaders manipulates the request headers according to the target options.
//
// Parameters:
// - req: The HTTP request whose headers will be manipulated.
func (t *Caronte) AddHeaders(req *http.Request) {
	// Remove excluded headers
	for _, header := range t.Options.ExcludedHeaders {
		req.Header.Del(header)
	}

	// Add or modify headers specified in the configuration. Host lives on
	// req.Host in net/http, whatever the case of the configured key.
	for header, value := range t.Options.AdditionalHeaders {
		if http.CanonicalHeaderKey(header) == "Host" {
			req.Host = value
		}
		req.Header.Set(header, value)
	}
}

// CloseIdleConnections closes idle upstream connections.
func (t *Caronte) CloseIdleConnections() {
	if c, ok := t.RT.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// CreateTransport creates an HTTP transport from the configuration,
// including client certificates and a custom CA when configured.
//
// Parameters:
// - cfg: The transport configuration.
//
// Returns:
// - *http.Transport: The transport.
// - error: An error if the TLS material could not be loaded.
func CreateTransport(cfg config.HTTPTransportConfig) (*http.Transport, error) {
	tlsConfig, err := createTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   orDefault(cfg.DialTimeout, DefaultDialTimeout),
		KeepAlive: orDefault(cfg.KeepAlive, DefaultKeepAlive),
	}

	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = DefaultMaxIdleConns
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsConfig,
		IdleConnTimeout:       orDefault(cfg.IdleConnTimeout, DefaultIdleConnTimeout),
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		TLSHandshakeTimeout:   orDefault(cfg.TLSHandshakeTimeout, DefaultTLSHandshakeTimeout),
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		DisableCompression:    cfg.DisableCompression,
		ForceAttemptHTTP2:     cfg.ForceHTTP2,
	}, nil
}

func createTLSConfig(cfg config.HTTPTransportConfig) (*tls.Config, error) {
	if cfg.CaFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{}

	// Load CA certificate
	if cfg.CaFile != "" {
		caCert, err := os.ReadFile(cfg.CaFile)
		if err != nil {
			return nil, fmt.Errorf("error reading CA file: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates found in CA file %s", cfg.CaFile)
		}
		tlsConfig.RootCAs = caCertPool
	}

	// Load client certificate and key
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		clientCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("error loading client certificate/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	return tlsConfig, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}
