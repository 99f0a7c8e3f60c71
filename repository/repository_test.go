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

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendRequest(ctx context.Context, body rpc.RequestBody) (*rpc.ResponseBody, error) {
	args := m.Called(ctx, body)
	resp, _ := args.Get(0).(*rpc.ResponseBody)
	return resp, args.Error(1)
}

func (m *MockSender) SendRequestRaw(ctx context.Context, body rpc.RequestBody) (*rpc.ResponseBody, error) {
	args := m.Called(ctx, body)
	resp, _ := args.Get(0).(*rpc.ResponseBody)
	return resp, args.Error(1)
}

func response(t *testing.T, text string) *rpc.ResponseBody {
	t.Helper()
	resp, err := rpc.ParseResponse([]byte(text))
	require.NoError(t, err)
	return resp
}

const emptyFind = `{"result": {"result": [], "count": 0, "truncated": false, "summary": "0 users matched"}, "error": null, "principal": "admin@EXAMPLE.TEST", "id": "1"}`

// captureRequest records the body handed to SendRequest.
func captureRequest(sender *MockSender, resp *rpc.ResponseBody) *rpc.RequestBody {
	var captured rpc.RequestBody
	sender.On("SendRequest", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(rpc.RequestBody) }).
		Return(resp, nil)
	return &captured
}

// loggedIn returns a client with a session on srv.
func loggedIn(t *testing.T, srv *ipatest.Server) *rpc.Client {
	t.Helper()
	client, err := rpc.NewClient(srv.Options(t))
	require.NoError(t, err)
	require.NoError(t, client.Login(context.Background(), ipatest.DefaultUser, ipatest.DefaultPassword))
	return client
}

func TestMergeOptions(t *testing.T) {
	merged := mergeOptions(
		Options{"all": true, "raw": false},
		map[string]any{"raw": true, "sn": "Doe"},
		nil,
		Options{"sn": "Smith"},
	)

	assert.Equal(t, Options{"all": true, "raw": true, "sn": "Smith"}, merged)
}

func TestBase_RequestKeepsTemplateOptions(t *testing.T) {
	template := rpc.NewRequestBody("", rpc.WithOpts(map[string]any{"version": "2.254"}))
	b := newBase(&MockSender{}, "user", template)

	body := b.request("show", []string{"bob"}, userShowDefaults, Options{"rights": true, "raw": nil})

	assert.Equal(t, "user_show", body.Method())
	assert.Equal(t, []string{"bob"}, body.Arguments())
	assert.Equal(t, map[string]any{
		"version":    "2.254",
		"all":        true,
		"no_members": false,
		"rights":     true,
	}, body.Options())
	assert.NotEmpty(t, body.ID())

	other := b.request("show", []string{"bob"}, userShowDefaults)
	assert.NotEqual(t, body.ID(), other.ID(), "every request gets its own id")
}

func TestDecodeFindResult(t *testing.T) {
	resp := response(t, `{"result": {"result": [{"uid": ["admin"], "uidnumber": ["1000"], "dn": "uid=admin,cn=users,cn=accounts,dc=example,dc=test"}], "count": 1, "truncated": true, "summary": "1 user matched"}, "error": null, "principal": "admin@EXAMPLE.TEST", "id": "1"}`)

	found, err := decodeFindResult(resp)
	require.NoError(t, err)
	assert.Equal(t, 1, found.Count)
	assert.True(t, found.Truncated)
	assert.Equal(t, "1 user matched", found.Summary)
	require.Len(t, found.Entries, 1)
	assert.Equal(t, "admin", found.Entries[0].First("uid"))
	assert.Equal(t, "1000", found.Entries[0].First("uidnumber"))
}

func TestDecodeFindResult_NullSummary(t *testing.T) {
	resp := response(t, `{"result": {"result": null, "count": 0, "truncated": false, "summary": null}, "error": null, "principal": "admin@EXAMPLE.TEST", "id": "1"}`)

	found, err := decodeFindResult(resp)
	require.NoError(t, err)
	assert.Empty(t, found.Summary)
	assert.NotNil(t, found.Entries)
	assert.Empty(t, found.Entries)
}

func TestGet_SenderErrorsPropagate(t *testing.T) {
	sender := &MockSender{}
	sender.On("SendRequestRaw", mock.Anything, mock.Anything).Return(nil, rpc.ErrNotAuthenticated)

	_, ok, err := NewUserRepository(sender, rpc.RequestBody{}).Get(context.Background(), "admin", nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, rpc.ErrNotAuthenticated)
}

func TestGet_NotFoundCaseInsensitive(t *testing.T) {
	sender := &MockSender{}
	sender.On("SendRequestRaw", mock.Anything, mock.Anything).Return(response(t,
		`{"result": null, "error": {"name": "notfound", "code": 4001, "message": "ghost: user not found"}, "principal": "admin@EXAMPLE.TEST", "id": "1"}`), nil)

	entry, ok, err := NewUserRepository(sender, rpc.RequestBody{}).Get(context.Background(), "ghost", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entry)
}

func TestGet_OtherErrorsAreRPCErrors(t *testing.T) {
	sender := &MockSender{}
	sender.On("SendRequestRaw", mock.Anything, mock.Anything).Return(response(t,
		`{"result": null, "error": {"name": "ACIError", "code": 2100, "message": "Insufficient access"}, "principal": "bob@EXAMPLE.TEST", "id": "1"}`), nil)

	_, ok, err := NewGroupRepository(sender, rpc.RequestBody{}).Get(context.Background(), "admins", nil)
	assert.False(t, ok)

	var rpcErr *rpc.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "ACIError", rpcErr.Name)
	assert.Equal(t, "group_show", rpcErr.Method)
}
