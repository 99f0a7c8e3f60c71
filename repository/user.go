package repository

import (
	"context"
	"fmt"
	"maps"

	"github.com/isometry/go-freeipa/rpc"
)

const userTopic = "user"

// Defaults for each user command, taken from what the ipa CLI sends.
var (
	userFindDefaults = Options{"all": true, "no_members": false, "pkey_only": false, "raw": false, "whoami": false}
	userShowDefaults = Options{"all": true, "no_members": false, "raw": false, "rights": false}
	userAddDefaults  = Options{"all": false, "no_members": false, "noprivate": false, "random": false, "raw": false}
	userModDefaults  = Options{"all": false, "no_members": false, "random": false, "raw": false, "rights": false}
	userDelDefaults  = Options{}
)

// UserRepository runs user_* commands.
type UserRepository struct {
	base
}

// NewUserRepository returns a repository sending through sender. Requests
// start from template, so options set on it (such as version) apply to every
// call.
func NewUserRepository(sender rpc.Sender, template rpc.RequestBody) *UserRepository {
	return &UserRepository{base: newBase(sender, userTopic, template)}
}

// Find runs user_find with positional criteria args.
func (r *UserRepository) Find(ctx context.Context, args []string, opts Options) (*FindResult, error) {
	return r.find(ctx, r.request("find", args, userFindDefaults, opts))
}

// FindBy runs user_find filtered on a single option.
func (r *UserRepository) FindBy(ctx context.Context, field, value string) (*FindResult, error) {
	return r.Find(ctx, nil, Options{field: value})
}

// FindByField is FindBy for a known field.
func (r *UserRepository) FindByField(ctx context.Context, field UserField, value string) (*FindResult, error) {
	return r.FindBy(ctx, string(field), value)
}

// Call dispatches a finder by name, e.g. Call(ctx, "findByMail", "bob@example.test").
func (r *UserRepository) Call(ctx context.Context, name, value string) (*FindResult, error) {
	return callFinder(ctx, "UserRepository", userFields, name, value, r.FindBy)
}

func (r *UserRepository) FindByGivenName(ctx context.Context, value string) (*FindResult, error) {
	return r.FindByField(ctx, UserFieldGivenName, value)
}

func (r *UserRepository) FindBySn(ctx context.Context, value string) (*FindResult, error) {
	return r.FindByField(ctx, UserFieldSn, value)
}

func (r *UserRepository) FindByCn(ctx context.Context, value string) (*FindResult, error) {
	return r.FindByField(ctx, UserFieldCn, value)
}

func (r *UserRepository) FindByInGroup(ctx context.Context, value string) (*FindResult, error) {
	return r.FindByField(ctx, UserFieldInGroup, value)
}

func (r *UserRepository) FindByNotInGroup(ctx context.Context, value string) (*FindResult, error) {
	return r.FindByField(ctx, UserFieldNotInGroup, value)
}

func (r *UserRepository) FindByMail(ctx context.Context, value string) (*FindResult, error) {
	return r.FindByField(ctx, UserFieldMail, value)
}

func (r *UserRepository) FindByUID(ctx context.Context, value string) (*FindResult, error) {
	return r.FindByField(ctx, UserFieldUID, value)
}

func (r *UserRepository) FindByUIDNumber(ctx context.Context, value string) (*FindResult, error) {
	return r.FindByField(ctx, UserFieldUIDNumber, value)
}

// Show runs user_show and returns the raw response. A missing user is an
// *rpc.RPCError with IsNotFound() true.
func (r *UserRepository) Show(ctx context.Context, uid string, opts Options) (*rpc.ResponseBody, error) {
	return r.send(ctx, r.request("show", []string{uid}, userShowDefaults, opts))
}

// Get returns the user entry, or ok=false when the user does not exist.
func (r *UserRepository) Get(ctx context.Context, uid string, opts Options) (entry Entry, ok bool, err error) {
	return r.get(ctx, r.request("show", []string{uid}, userShowDefaults, opts))
}

// Add creates a user. data must hold "uid", which is sent as the first
// positional argument; the remaining keys become options. data is not modified.
func (r *UserRepository) Add(ctx context.Context, data map[string]any, args []string, opts Options) (Entry, error) {
	uid, ok := data["uid"]
	if !ok || uid == nil || fmt.Sprint(uid) == "" {
		return nil, &rpc.ConfigurationError{Field: "uid", Message: "user data must contain a uid"}
	}

	attrs := maps.Clone(data)
	delete(attrs, "uid")

	positional := append([]string{fmt.Sprint(uid)}, args...)
	resp, err := r.send(ctx, r.request("add", positional, userAddDefaults, attrs, opts))
	if err != nil {
		return nil, err
	}
	return entryResult(resp)
}

// Mod updates uid with the attributes in data.
func (r *UserRepository) Mod(ctx context.Context, uid string, data map[string]any, args []string, opts Options) (Entry, error) {
	positional := append([]string{uid}, args...)
	resp, err := r.send(ctx, r.request("mod", positional, userModDefaults, data, opts))
	if err != nil {
		return nil, err
	}
	return entryResult(resp)
}

// Del runs user_del for the users in args.
func (r *UserRepository) Del(ctx context.Context, args []string, opts Options) (*rpc.ResponseBody, error) {
	return r.send(ctx, r.request("del", args, userDelDefaults, opts))
}
