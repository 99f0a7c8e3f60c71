package rpc

import (
	"bytes"
	"context"
	"io"
	"maps"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"golang.org/x/net/publicsuffix"
)

// HTTPDoer executes HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sender sends JSON-RPC requests over an authenticated session.
type Sender interface {
	SendRequest(ctx context.Context, body RequestBody) (*ResponseBody, error)
	SendRequestRaw(ctx context.Context, body RequestBody) (*ResponseBody, error)
}

// Client holds one FreeIPA session. Requests may be sent concurrently once
// logged in; Login and Logout replace the session for all callers.
type Client struct {
	options    Options
	httpClient *http.Client
	doer       HTTPDoer
	logContext context.Context // Context with the freeipa subsystem configured

	mu            sync.RWMutex
	jar           http.CookieJar
	authenticated bool
	principal     string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPDoer sends requests through doer instead of the built-in transport.
func WithHTTPDoer(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		c.doer = doer
	}
}

// WithHTTPClient replaces the built-in http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
		c.doer = hc
	}
}

// NewClient creates a client for the server in opts.
func NewClient(opts *Options, clientOpts ...ClientOption) (*Client, error) {
	return NewClientWithContext(context.Background(), opts, clientOpts...)
}

// NewClientWithContext creates a client that logs through the root logger in ctx.
func NewClientWithContext(ctx context.Context, opts *Options, clientOpts ...ClientOption) (*Client, error) {
	if opts == nil {
		return nil, &ConfigurationError{Message: "options are required"}
	}

	logCtx := NewLoggingContext(ctx)

	c := &Client{
		options:    *opts,
		logContext: logCtx,
	}
	if err := c.options.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := c.options.Validate(); err != nil {
		return nil, err
	}

	for _, opt := range clientOpts {
		opt(c)
	}

	if c.httpClient == nil {
		hc, err := newHTTPClient(&c.options)
		if err != nil {
			tflog.SubsystemError(logCtx, Subsystem, "Failed to build HTTP transport", map[string]any{
				"error": err.Error(),
			})
			return nil, err
		}
		c.httpClient = hc
	} else if c.options.CertificatePath != "" {
		// an injected client brings its own TLS setup; the CA file must still be readable
		if _, err := buildCertPool(c.options.CertificatePath); err != nil {
			return nil, err
		}
	}
	if c.doer == nil {
		c.doer = c.httpClient
	}

	if err := c.resetSession(); err != nil {
		return nil, err
	}

	tflog.SubsystemDebug(logCtx, Subsystem, "Created FreeIPA client", map[string]any{
		"server":           c.options.BaseURL(),
		"api_version":      c.options.APIVersion,
		"certificate_path": c.options.CertificatePath,
	})

	return c, nil
}

// Options returns a copy of the client options.
func (c *Client) Options() Options {
	return c.options
}

// IsAuthenticated reports whether the last login succeeded.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// Principal returns the principal reported by the most recent response.
func (c *Client) Principal() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.principal
}

// getLoggingContext returns the stored logging context.
func (c *Client) getLoggingContext() context.Context {
	return c.logContext
}

func (c *Client) resetSession() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return &ConfigurationError{Message: "failed to create cookie jar", Cause: err}
	}

	c.mu.Lock()
	c.jar = jar
	c.authenticated = false
	c.principal = ""
	c.mu.Unlock()
	return nil
}

func (c *Client) setAuthenticated(ok bool) {
	c.mu.Lock()
	c.authenticated = ok
	c.mu.Unlock()
}

// Login opens a session with username and password. A failed login leaves
// the client unauthenticated, even if an earlier login succeeded.
func (c *Client) Login(ctx context.Context, username, password string) error {
	logCtx := c.getLoggingContext()

	return LogOperation(logCtx, "login_password", map[string]any{
		"username": username,
	}, func() error {
		if err := c.resetSession(); err != nil {
			return err
		}

		LogSessionEvent(logCtx, "login_attempt", map[string]any{"username": username})

		form := url.Values{
			"user":     {username},
			"password": {password},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.endpoint(loginPasswordPath), strings.NewReader(form.Encode()))
		if err != nil {
			return &TransportError{Operation: "login", Cause: err}
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "text/plain")

		resp, err := c.do(req)
		if err != nil {
			return &TransportError{Operation: "login", Cause: err}
		}
		defer resp.Body.Close()

		return c.completeLogin(logCtx, resp, username)
	})
}

// completeLogin records the outcome of a login_password or login_kerberos response.
func (c *Client) completeLogin(logCtx context.Context, resp *http.Response, username string) error {
	if resp.StatusCode != http.StatusOK {
		authErr := newAuthenticationError(resp)
		LogSessionEvent(logCtx, "login_failed", map[string]any{
			"username":    username,
			"http_status": resp.StatusCode,
			"message":     authErr.Message,
			"reason":      authErr.Reason,
		})
		return authErr
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	if !c.hasSessionCookie() {
		tflog.SubsystemWarn(logCtx, Subsystem, "Login succeeded without an ipa_session cookie", map[string]any{
			"username": username,
		})
	}

	c.setAuthenticated(true)
	LogSessionEvent(logCtx, "login_success", map[string]any{"username": username})
	return nil
}

// Logout ends the server session and forgets the cookie.
func (c *Client) Logout(ctx context.Context) error {
	if !c.IsAuthenticated() {
		return nil
	}
	_, err := c.SendRequest(ctx, NewRequestBody("session_logout"))
	if resetErr := c.resetSession(); resetErr != nil && err == nil {
		err = resetErr
	}
	LogSessionEvent(c.getLoggingContext(), "logout", nil)
	return err
}

// SendRequest sends body and fails with *RPCError when the response carries an error.
func (c *Client) SendRequest(ctx context.Context, body RequestBody) (*ResponseBody, error) {
	resp, err := c.SendRequestRaw(ctx, body)
	if err != nil {
		return nil, err
	}
	if resp.HasError() {
		rpcErr := NewRPCError(body.Method(), resp.Error())
		LogRPCError(c.getLoggingContext(), body.FullMethod(), rpcErr, map[string]any{"id": body.ID()})
		return nil, rpcErr
	}
	return resp, nil
}

// SendRequestRaw sends body and returns the decoded response even when it
// carries an error, so callers can inspect recoverable errors.
func (c *Client) SendRequestRaw(ctx context.Context, body RequestBody) (*ResponseBody, error) {
	logCtx := c.getLoggingContext()

	if !c.IsAuthenticated() {
		tflog.SubsystemDebug(logCtx, Subsystem, "Refusing request without a session", map[string]any{
			"method": body.FullMethod(),
		})
		return nil, ErrNotAuthenticated
	}

	if body.Method() == "" {
		return nil, &ConfigurationError{Field: "method", Message: "request method cannot be empty"}
	}

	if c.options.APIVersion != "" && !body.HasOption(VersionOption) {
		body = body.WithOption(VersionOption, c.options.APIVersion)
	}

	payload, err := Encode(body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tflog.SubsystemTrace(logCtx, Subsystem, "Sending request", map[string]any{
		"method":      body.FullMethod(),
		"id":          body.ID(),
		"arguments":   len(body.arguments),
		"option_keys": slices.Sorted(maps.Keys(body.options)),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.endpoint(jsonPath), bytes.NewReader([]byte(payload)))
	if err != nil {
		return nil, &TransportError{Operation: body.FullMethod(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.do(req)
	if err != nil {
		transportErr := &TransportError{Operation: body.FullMethod(), Cause: err}
		LogRPCError(logCtx, body.FullMethod(), transportErr, nil)
		return nil, transportErr
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, maxErrorPageSize))
		if httpResp.StatusCode == http.StatusUnauthorized {
			c.setAuthenticated(false)
			LogSessionEvent(logCtx, "session_expired", map[string]any{"method": body.FullMethod()})
		}
		transportErr := &TransportError{Operation: body.FullMethod(), StatusCode: httpResp.StatusCode}
		LogRPCError(logCtx, body.FullMethod(), transportErr, nil)
		return nil, transportErr
	}

	resp, err := BuildResponse(httpResp)
	if err != nil {
		LogRPCError(logCtx, body.FullMethod(), err, nil)
		return nil, err
	}

	if resp.Principal() != "" {
		c.mu.Lock()
		c.principal = resp.Principal()
		c.mu.Unlock()
	}

	tflog.SubsystemDebug(logCtx, Subsystem, "Request completed", map[string]any{
		"method":      body.FullMethod(),
		"id":          resp.ID(),
		"principal":   resp.Principal(),
		"has_error":   resp.HasError(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return resp, nil
}

// do attaches session cookies and the Referer, sends req and stores any
// cookies the server sets.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	return c.doWith(c.doer, req)
}

func (c *Client) doWith(doer HTTPDoer, req *http.Request) (*http.Response, error) {
	c.mu.RLock()
	jar := c.jar
	c.mu.RUnlock()

	req.Header.Set("Referer", c.options.Referer())
	req.Header.Set("User-Agent", c.options.UserAgent)
	for _, cookie := range jar.Cookies(req.URL) {
		req.AddCookie(cookie)
	}

	resp, err := doer.Do(req)
	if err != nil {
		return nil, err
	}

	if cookies := resp.Cookies(); len(cookies) > 0 {
		jar.SetCookies(req.URL, cookies)
	}
	return resp, nil
}

func (c *Client) hasSessionCookie() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, err := url.Parse(c.options.BaseURL() + "/ipa/")
	if err != nil {
		return false
	}
	for _, cookie := range c.jar.Cookies(u) {
		if cookie.Name == SessionCookieName {
			return true
		}
	}
	return false
}

// SessionCookieName is the cookie FreeIPA uses for session state.
const SessionCookieName = "ipa_session"
