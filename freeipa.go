// Package freeipa is a client for the FreeIPA JSON-RPC API.
//
// A FreeIPA value owns one authenticated session and hands out repositories
// for users and groups:
//
//	opts, _ := freeipa.NewOptions("ipa.example.test", freeipa.WithCertificatePath("/etc/ipa/ca.crt"))
//	ipa, _ := freeipa.New(opts)
//	if err := ipa.Login(ctx, "admin", password); err != nil { ... }
//	entry, ok, err := ipa.Users().Get(ctx, "admin", nil)
//
// Commands without a repository can be sent directly with SendRequest.
// Lower-level building blocks live in the rpc and repository packages.
package freeipa

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/go-freeipa/repository"
	"github.com/isometry/go-freeipa/rpc"
)

type (
	Options             = rpc.Options
	Option              = rpc.Option
	ClientOption        = rpc.ClientOption
	KerberosCredentials = rpc.KerberosCredentials
)

// NewOptions validates server and applies defaults.
func NewOptions(server string, opts ...Option) (*Options, error) {
	return rpc.NewOptions(server, opts...)
}

var (
	WithCertificatePath = rpc.WithCertificatePath
	WithAPIVersion      = rpc.WithAPIVersion
	WithTimeout         = rpc.WithTimeout
	WithRealm           = rpc.WithRealm
	WithHTTPDoer        = rpc.WithHTTPDoer
	WithHTTPClient      = rpc.WithHTTPClient
)

// closeTimeout bounds the logout sent by Close.
const closeTimeout = 10 * time.Second

// FreeIPA ties a session client to the repositories that use it.
type FreeIPA struct {
	client *rpc.Client
	users  *repository.UserRepository
	groups *repository.GroupRepository
}

// New creates an unauthenticated FreeIPA handle.
func New(opts *Options, clientOpts ...ClientOption) (*FreeIPA, error) {
	return NewWithContext(context.Background(), opts, clientOpts...)
}

// NewWithContext creates a handle whose client logs through the root logger in ctx.
func NewWithContext(ctx context.Context, opts *Options, clientOpts ...ClientOption) (*FreeIPA, error) {
	client, err := rpc.NewClientWithContext(ctx, opts, clientOpts...)
	if err != nil {
		return nil, err
	}
	return NewFromClient(client), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *rpc.Client) *FreeIPA {
	var template rpc.RequestBody
	return &FreeIPA{
		client: client,
		users:  repository.NewUserRepository(client, template),
		groups: repository.NewGroupRepository(client, template),
	}
}

// DiscoverOptions finds a FreeIPA server for domain through DNS SRV records
// and returns options for the highest-priority one.
func DiscoverOptions(ctx context.Context, domain string, opts ...Option) (*Options, error) {
	return discoverOptions(ctx, rpc.NewSRVDiscovery(ctx), domain, opts...)
}

// DiscoverOptionsWithResolver is DiscoverOptions using resolver for SRV lookups.
func DiscoverOptionsWithResolver(ctx context.Context, resolver rpc.SRVResolver, domain string, opts ...Option) (*Options, error) {
	return discoverOptions(ctx, rpc.NewSRVDiscoveryWithResolver(ctx, resolver), domain, opts...)
}

func discoverOptions(ctx context.Context, discovery *rpc.SRVDiscovery, domain string, opts ...Option) (*Options, error) {
	servers, err := discovery.DiscoverServers(ctx, domain)
	if err != nil {
		return nil, err
	}
	return rpc.NewOptions(servers[0].Host, opts...)
}

// Client returns the underlying session client.
func (f *FreeIPA) Client() *rpc.Client {
	return f.client
}

// Login opens a session with username and password.
func (f *FreeIPA) Login(ctx context.Context, username, password string) error {
	return f.client.Login(ctx, username, password)
}

// LoginKerberos opens a session with SPNEGO.
func (f *FreeIPA) LoginKerberos(ctx context.Context, creds KerberosCredentials) error {
	return f.client.LoginKerberos(ctx, creds)
}

// IsAuthenticated reports whether a session is open.
func (f *FreeIPA) IsAuthenticated() bool {
	return f.client.IsAuthenticated()
}

func (f *FreeIPA) Users() *repository.UserRepository {
	return f.users
}

func (f *FreeIPA) Groups() *repository.GroupRepository {
	return f.groups
}

// SendRequest sends any command; server errors become *rpc.RPCError.
func (f *FreeIPA) SendRequest(ctx context.Context, body rpc.RequestBody) (*rpc.ResponseBody, error) {
	return f.client.SendRequest(ctx, body)
}

// SendRequestRaw sends any command and returns server errors in the response.
func (f *FreeIPA) SendRequestRaw(ctx context.Context, body rpc.RequestBody) (*rpc.ResponseBody, error) {
	return f.client.SendRequestRaw(ctx, body)
}

// Ping returns the server's version summary.
func (f *FreeIPA) Ping(ctx context.Context) (string, error) {
	resp, err := f.client.SendRequest(ctx, rpc.NewRequestBody("ping"))
	if err != nil {
		return "", err
	}
	return resp.Summary(), nil
}

// Identity is the result of the whoami command.
type Identity struct {
	Object    string   `json:"object"`
	Command   string   `json:"command"`
	Arguments []string `json:"arguments"`
}

// Whoami reports which entry the session is bound to.
func (f *FreeIPA) Whoami(ctx context.Context) (*Identity, error) {
	resp, err := f.client.SendRequest(ctx, rpc.NewRequestBody("whoami"))
	if err != nil {
		return nil, err
	}

	var id Identity
	if err := resp.DecodeResult(&id); err != nil {
		return nil, err
	}
	return &id, nil
}

// IsConnected reports whether the session answers a ping.
func (f *FreeIPA) IsConnected(ctx context.Context) bool {
	if _, err := f.Ping(ctx); err != nil {
		tflog.Debug(ctx, "Connection check failed", map[string]any{
			"error": err.Error(),
		})
		return false
	}
	return true
}

// Logout ends the session.
func (f *FreeIPA) Logout(ctx context.Context) error {
	return f.client.Logout(ctx)
}

// Close logs out if a session is open.
func (f *FreeIPA) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := f.client.Logout(ctx); err != nil {
		return fmt.Errorf("failed to close FreeIPA session: %w", err)
	}
	return nil
}
