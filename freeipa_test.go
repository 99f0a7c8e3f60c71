package freeipa_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	freeipa "github.com/isometry/go-freeipa"
	"github.com/isometry/go-freeipa/internal/ipatest"
	"github.com/isometry/go-freeipa/repository"
	"github.com/isometry/go-freeipa/rpc"
)

func newFreeIPA(t *testing.T, srv *ipatest.Server) *freeipa.FreeIPA {
	t.Helper()
	ipa, err := freeipa.New(srv.Options(t))
	require.NoError(t, err)
	return ipa
}

func TestFreeIPA_Session(t *testing.T) {
	ctx := context.Background()
	srv := ipatest.NewServer(t)
	ipa := newFreeIPA(t, srv)

	assert.False(t, ipa.IsAuthenticated())
	assert.False(t, ipa.IsConnected(ctx))

	_, err := ipa.Ping(ctx)
	assert.ErrorIs(t, err, rpc.ErrNotAuthenticated)

	require.NoError(t, ipa.Login(ctx, ipatest.DefaultUser, ipatest.DefaultPassword))
	assert.True(t, ipa.IsAuthenticated())
	assert.True(t, ipa.IsConnected(ctx))

	summary, err := ipa.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, ipatest.PingSummary, summary)

	id, err := ipa.Whoami(ctx)
	require.NoError(t, err)
	assert.Equal(t, &freeipa.Identity{Object: "user", Command: "user_show/1", Arguments: []string{"admin"}}, id)

	require.NoError(t, ipa.Close())
	assert.False(t, ipa.IsAuthenticated())

	last, ok := srv.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "session_logout", last.Body.Method())

	require.NoError(t, ipa.Close(), "closing twice is harmless")
}

func TestFreeIPA_Repositories(t *testing.T) {
	ctx := context.Background()
	srv := ipatest.NewServer(t)
	dir := srv.ServeDirectory()
	ipa := newFreeIPA(t, srv)
	require.NoError(t, ipa.Login(ctx, ipatest.DefaultUser, ipatest.DefaultPassword))

	_, err := ipa.Users().Add(ctx, map[string]any{"uid": "bob", "givenname": "Bob", "sn": "Builder"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, dir.HasUser("bob"))

	_, err = ipa.Groups().AddMember(ctx, "admins", "bob")
	require.NoError(t, err)

	users, _ := dir.GroupMembers("admins")
	assert.Contains(t, users, "bob")

	found, err := ipa.Users().FindByInGroup(ctx, "admins")
	require.NoError(t, err)
	assert.Equal(t, 2, found.Count)

	entry, ok, err := ipa.Groups().Get(ctx, "admins", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"admin", "bob"}, repository.MembersOf(entry).Users)
}

func TestFreeIPA_SendRequest(t *testing.T) {
	ctx := context.Background()
	srv := ipatest.NewServer(t)
	srv.Handle("config_show", func(rpc.RequestBody) (any, *rpc.ErrorPayload) {
		return map[string]any{"result": map[string]any{"ipadefaultloginshell": []string{"/bin/bash"}}}, nil
	})
	ipa := newFreeIPA(t, srv)
	require.NoError(t, ipa.Login(ctx, ipatest.DefaultUser, ipatest.DefaultPassword))

	resp, err := ipa.SendRequest(ctx, rpc.NewRequestBody("config_show"))
	require.NoError(t, err)
	result, err := resp.ResultMap()
	require.NoError(t, err)
	assert.Contains(t, result, "result")

	_, err = ipa.SendRequest(ctx, rpc.NewRequestBody("no_such_command"))
	assert.True(t, rpc.IsRPCError(err))

	raw, err := ipa.SendRequestRaw(ctx, rpc.NewRequestBody("no_such_command"))
	require.NoError(t, err)
	assert.True(t, raw.HasError())
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := freeipa.New(nil)
	assert.Equal(t, rpc.ErrorCategoryConfiguration, rpc.GetErrorCategory(err))

	_, err = freeipa.NewOptions("")
	assert.Equal(t, rpc.ErrorCategoryConfiguration, rpc.GetErrorCategory(err))
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error) {
	args := m.Called(ctx, service, proto, name)
	records, _ := args.Get(1).([]*net.SRV)
	return args.String(0), records, args.Error(2)
}

func TestDiscoverOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("highest priority server", func(t *testing.T) {
		resolver := &MockResolver{}
		resolver.On("LookupSRV", mock.Anything, "ldap", "tcp", "example.test").Return("", []*net.SRV{
			{Target: "ipa2.example.test.", Priority: 10},
			{Target: "ipa1.example.test.", Priority: 0},
		}, nil)

		opts, err := freeipa.DiscoverOptionsWithResolver(ctx, resolver, "example.test", freeipa.WithRealm("EXAMPLE.TEST"))
		require.NoError(t, err)
		assert.Equal(t, "ipa1.example.test", opts.Server)
		assert.Equal(t, "EXAMPLE.TEST", opts.Realm)
	})

	t.Run("nothing found", func(t *testing.T) {
		resolver := &MockResolver{}
		resolver.On("LookupSRV", mock.Anything, mock.Anything, "tcp", "example.test").Return("", nil, errors.New("no such host"))

		_, err := freeipa.DiscoverOptionsWithResolver(ctx, resolver, "example.test")
		assert.True(t, rpc.IsTransportError(err))
	})
}
