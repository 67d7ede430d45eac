// Package proxmox is a minimal client for the Proxmox VE REST API.
//
// It covers exactly the surface the provisioning flow needs: credential
// fallback authentication (API token verified by a probe call, then
// username/password ticket login), JSON GETs, form-encoded POSTs, and
// polling of asynchronous task identifiers to completion.
package proxmox

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"
)

// Default call bounds. Light calls are metadata reads; heavy calls are
// mutating operations that the hypervisor may take a while to accept.
const (
	DefaultLightTimeout = 15 * time.Second
	DefaultHeavyTimeout = 60 * time.Second

	// taskPollInterval is the fixed delay between task status polls.
	taskPollInterval = 1500 * time.Millisecond
)

// Credentials carries the authentication material for one host. Token
// fields take precedence; username/password is the fallback path.
type Credentials struct {
	TokenID     string
	TokenSecret string
	Username    string
	Password    string
}

// HasToken reports whether a complete API token pair is present.
func (c Credentials) HasToken() bool {
	return c.TokenID != "" && c.TokenSecret != ""
}

// HasPassword reports whether a complete username/password pair is present.
func (c Credentials) HasPassword() bool {
	return c.Username != "" && c.Password != ""
}

// Auth carries the headers produced by a successful authentication.
type Auth struct {
	method  string
	headers map[string]string
}

// Method returns "token" or "password".
func (a *Auth) Method() string {
	return a.method
}

func (a *Auth) apply(req *http.Request) {
	if a == nil {
		return
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
}

// Client talks to a single Proxmox endpoint.
type Client struct {
	base  string
	httpc *http.Client

	lightTimeout time.Duration
	heavyTimeout time.Duration

	// sleep is swappable so tests can run task polls without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeouts overrides the light (metadata) and heavy (mutating) call bounds.
func WithTimeouts(light, heavy time.Duration) Option {
	return func(c *Client) {
		if light > 0 {
			c.lightTimeout = light
		}
		if heavy > 0 {
			c.heavyTimeout = heavy
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// WithSleep replaces the inter-poll sleep function.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// New creates a client for the given base URL. When the configured URL uses
// the plain http scheme it is forced to https so that a scheme-changing
// redirect cannot drop auth headers mid-flight. insecure relaxes certificate
// validation for hosts running self-signed certs.
func New(baseURL string, insecure bool, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasPrefix(base, "http:") {
		base = "https:" + strings.TrimPrefix(base, "http:")
	}

	c := &Client{
		base:         base,
		lightTimeout: DefaultLightTimeout,
		heavyTimeout: DefaultHeavyTimeout,
		sleep:        ctxSleep,
	}

	transport := http.DefaultTransport
	if insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	c.httpc = &http.Client{Transport: transport}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the normalized base URL the client calls.
func (c *Client) BaseURL() string {
	return c.base
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
