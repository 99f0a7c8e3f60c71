package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isometry/go-freeipa/internal/ipatest"
	"github.com/isometry/go-freeipa/rpc"
)

func TestUserRepository_FindDefaults(t *testing.T) {
	sender := &MockSender{}
	captured := captureRequest(sender, response(t, emptyFind))

	_, err := NewUserRepository(sender, rpc.RequestBody{}).Find(context.Background(), []string{"adm"}, Options{"whoami": true})
	require.NoError(t, err)

	assert.Equal(t, "user_find", captured.Method())
	assert.Equal(t, []string{"adm"}, captured.Arguments())
	assert.Equal(t, map[string]any{
		"all":        true,
		"no_members": false,
		"pkey_only":  false,
		"raw":        false,
		"whoami":     true,
	}, captured.Options())
	sender.AssertExpectations(t)
}

func TestUserRepository_FindByWrappers(t *testing.T) {
	tests := []struct {
		name  string
		call  func(r *UserRepository) (*FindResult, error)
		field string
	}{
		{"given name", func(r *UserRepository) (*FindResult, error) { return r.FindByGivenName(context.Background(), "v") }, "givenname"},
		{"sn", func(r *UserRepository) (*FindResult, error) { return r.FindBySn(context.Background(), "v") }, "sn"},
		{"cn", func(r *UserRepository) (*FindResult, error) { return r.FindByCn(context.Background(), "v") }, "cn"},
		{"in group", func(r *UserRepository) (*FindResult, error) { return r.FindByInGroup(context.Background(), "v") }, "in_group"},
		{"not in group", func(r *UserRepository) (*FindResult, error) { return r.FindByNotInGroup(context.Background(), "v") }, "not_in_group"},
		{"mail", func(r *UserRepository) (*FindResult, error) { return r.FindByMail(context.Background(), "v") }, "mail"},
		{"uid", func(r *UserRepository) (*FindResult, error) { return r.FindByUID(context.Background(), "v") }, "uid"},
		{"uid number", func(r *UserRepository) (*FindResult, error) { return r.FindByUIDNumber(context.Background(), "v") }, "uidnumber"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &MockSender{}
			captured := captureRequest(sender, response(t, emptyFind))

			_, err := tt.call(NewUserRepository(sender, rpc.RequestBody{}))
			require.NoError(t, err)

			assert.Empty(t, captured.Arguments())
			value, ok := captured.Option(tt.field)
			assert.True(t, ok)
			assert.Equal(t, "v", value)
		})
	}
}

func TestUserRepository_Call(t *testing.T) {
	tests := []struct {
		name  string
		field string
	}{
		{"findBySn", "sn"},
		{"findByGivenName", "givenname"},
		{"findByUid", "uid"},
		{"findByUidNumber", "uidnumber"},
		{"findByInGroup", "in_group"},
		{"findByin_group", "in_group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &MockSender{}
			captured := captureRequest(sender, response(t, emptyFind))

			_, err := NewUserRepository(sender, rpc.RequestBody{}).Call(context.Background(), tt.name, "x")
			require.NoError(t, err)
			assert.True(t, captured.HasOption(tt.field))
		})
	}
}

func TestUserRepository_CallUnknown(t *testing.T) {
	sender := &MockSender{}
	repo := NewUserRepository(sender, rpc.RequestBody{})

	for _, name := range []string{"findBy", "findByShoeSize", "deleteEverything"} {
		_, err := repo.Call(context.Background(), name, "x")

		var noMethod *NoSuchMethodError
		require.ErrorAs(t, err, &noMethod, name)
		assert.Equal(t, name, noMethod.Name)
		assert.Equal(t, rpc.ErrorCategoryUsage, rpc.GetErrorCategory(err))
	}
	sender.AssertNotCalled(t, "SendRequest", mock.Anything, mock.Anything)
}

func TestUserFinders(t *testing.T) {
	assert.Equal(t, []string{
		"findBycn", "findBygivenname", "findByin_group", "findBymail",
		"findBynot_in_group", "findBysn", "findByuid", "findByuidnumber",
	}, UserFinders())
}

func TestUserRepository_AddMovesUIDToArguments(t *testing.T) {
	sender := &MockSender{}
	captured := captureRequest(sender, response(t, `{"result": {"result": {"uid": ["bob"]}, "value": "bob", "summary": "Added user \"bob\""}, "error": null, "principal": "admin@EXAMPLE.TEST", "id": "1"}`))

	data := map[string]any{"uid": "bob", "givenname": "Bob", "sn": "Builder"}
	entry, err := NewUserRepository(sender, rpc.RequestBody{}).Add(context.Background(), data, []string{"extra"}, Options{"random": true})
	require.NoError(t, err)

	assert.Equal(t, "bob", entry.First("uid"))
	assert.Equal(t, "user_add", captured.Method())
	assert.Equal(t, []string{"bob", "extra"}, captured.Arguments())
	assert.False(t, captured.HasOption("uid"))
	assert.Equal(t, map[string]any{
		"all":        false,
		"no_members": false,
		"noprivate":  false,
		"random":     true,
		"raw":        false,
		"givenname":  "Bob",
		"sn":         "Builder",
	}, captured.Options())
	assert.Equal(t, "bob", data["uid"], "caller data must not be modified")
}

func TestUserRepository_AddRequiresUID(t *testing.T) {
	sender := &MockSender{}

	_, err := NewUserRepository(sender, rpc.RequestBody{}).Add(context.Background(), map[string]any{"sn": "x"}, nil, nil)

	var cfgErr *rpc.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "uid", cfgErr.Field)
	sender.AssertNotCalled(t, "SendRequest", mock.Anything, mock.Anything)
}

func TestUserRepository_ModAndDelDefaults(t *testing.T) {
	t.Run("mod", func(t *testing.T) {
		sender := &MockSender{}
		captured := captureRequest(sender, response(t, `{"result": {"result": {"uid": ["bob"], "sn": ["Smith"]}, "value": "bob", "summary": "Modified user \"bob\""}, "error": null, "principal": "admin@EXAMPLE.TEST", "id": "1"}`))

		entry, err := NewUserRepository(sender, rpc.RequestBody{}).Mod(context.Background(), "bob", map[string]any{"sn": "Smith"}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "Smith", entry.First("sn"))
		assert.Equal(t, []string{"bob"}, captured.Arguments())
		assert.Equal(t, map[string]any{
			"all":        false,
			"no_members": false,
			"random":     false,
			"raw":        false,
			"rights":     false,
			"sn":         "Smith",
		}, captured.Options())
	})

	t.Run("del", func(t *testing.T) {
		sender := &MockSender{}
		captured := captureRequest(sender, response(t, `{"result": {"result": {"failed": []}, "value": ["bob"], "summary": "Deleted user \"bob\""}, "error": null, "principal": "admin@EXAMPLE.TEST", "id": "1"}`))

		resp, err := NewUserRepository(sender, rpc.RequestBody{}).Del(context.Background(), []string{"bob"}, nil)
		require.NoError(t, err)
		assert.Equal(t, `Deleted user "bob"`, resp.Summary())
		assert.Equal(t, "user_del", captured.Method())
		assert.Empty(t, captured.Options())
	})
}

func TestUserRepository_AgainstServer(t *testing.T) {
	ctx := context.Background()
	srv := ipatest.NewServer(t)
	srv.ServeDirectory()
	users := NewUserRepository(loggedIn(t, srv), rpc.RequestBody{})

	t.Run("get missing user is absent", func(t *testing.T) {
		entry, ok, err := users.Get(ctx, "ghost", nil)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, entry)
	})

	t.Run("show missing user is an error", func(t *testing.T) {
		_, err := users.Show(ctx, "ghost", nil)
		assert.True(t, rpc.IsNotFoundError(err))
	})

	t.Run("get admin", func(t *testing.T) {
		entry, ok, err := users.Get(ctx, ipatest.DefaultUser, nil)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Contains(t, entry.Values("uid"), "admin")
		assert.Contains(t, entry.Values("memberof_group"), "admins")

		dn, err := entry.DN()
		require.NoError(t, err)
		assert.True(t, dn.EqualFold(mustParseDN(t, UserDN("admin", ipatest.BaseDN))))
	})

	t.Run("add find mod del", func(t *testing.T) {
		_, err := users.Add(ctx, map[string]any{"uid": "jdoe", "givenname": "Jane", "sn": "Doe", "mail": "jdoe@example.test"}, nil, nil)
		require.NoError(t, err)

		_, err = users.Add(ctx, map[string]any{"uid": "jdoe"}, nil, nil)
		var rpcErr *rpc.RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, "DuplicateEntry", rpcErr.Name)

		found, err := users.FindByMail(ctx, "jdoe@example.test")
		require.NoError(t, err)
		require.Equal(t, 1, found.Count)
		assert.Equal(t, "jdoe", found.Entries[0].First("uid"))

		found, err = users.Call(ctx, "findByInGroup", "ipausers")
		require.NoError(t, err)
		assert.Equal(t, 1, found.Count)

		entry, err := users.Mod(ctx, "jdoe", map[string]any{"sn": "Smith"}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "Smith", entry.First("sn"))

		resp, err := users.Del(ctx, []string{"jdoe"}, nil)
		require.NoError(t, err)
		assert.Contains(t, resp.Summary(), "jdoe")

		_, ok, err := users.Get(ctx, "jdoe", nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
