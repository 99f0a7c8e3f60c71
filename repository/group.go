package repository

import (
	"context"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/go-freeipa/rpc"
)

const groupTopic = "group"

// Defaults for each group command, taken from what the ipa CLI sends.
var (
	groupFindDefaults   = Options{"all": true, "private": false, "posix": false, "external": false, "nonposix": true, "no_members": true, "raw": false}
	groupShowDefaults   = Options{"all": true, "no_members": false, "raw": false, "rights": false}
	groupAddDefaults    = Options{"all": false, "external": false, "no_members": false, "nonposix": false, "raw": false}
	groupModDefaults    = Options{"all": false, "no_members": false, "raw": false, "rights": false}
	groupDelDefaults    = Options{}
	groupMemberDefaults = Options{"all": false, "no_members": true, "raw": false}
)

// GroupRepository runs group_* commands.
type GroupRepository struct {
	base
}

// NewGroupRepository returns a repository sending through sender.
func NewGroupRepository(sender rpc.Sender, template rpc.RequestBody) *GroupRepository {
	return &GroupRepository{base: newBase(sender, groupTopic, template)}
}

// Find runs group_find with positional criteria args.
func (r *GroupRepository) Find(ctx context.Context, args []string, opts Options) (*FindResult, error) {
	return r.find(ctx, r.request("find", args, groupFindDefaults, opts))
}

// FindBy runs group_find filtered on a single option.
func (r *GroupRepository) FindBy(ctx context.Context, field, value string) (*FindResult, error) {
	return r.Find(ctx, nil, Options{field: value})
}

// FindByField is FindBy for a known field.
func (r *GroupRepository) FindByField(ctx context.Context, field GroupField, value string) (*FindResult, error) {
	return r.FindBy(ctx, string(field), value)
}

// Call dispatches a finder by name, e.g. Call(ctx, "findByCn", "admins").
func (r *GroupRepository) Call(ctx context.Context, name, value string) (*FindResult, error) {
	return callFinder(ctx, "GroupRepository", groupFields, name, value, r.FindBy)
}

// Show runs group_show and returns the raw response.
func (r *GroupRepository) Show(ctx context.Context, cn string, opts Options) (*rpc.ResponseBody, error) {
	return r.send(ctx, r.request("show", []string{cn}, groupShowDefaults, opts))
}

// Get returns the group entry, or ok=false when the group does not exist.
func (r *GroupRepository) Get(ctx context.Context, cn string, opts Options) (entry Entry, ok bool, err error) {
	return r.get(ctx, r.request("show", []string{cn}, groupShowDefaults, opts))
}

// Add creates group name with the attributes in data.
func (r *GroupRepository) Add(ctx context.Context, name string, data map[string]any, opts Options) (Entry, error) {
	resp, err := r.send(ctx, r.request("add", []string{name}, groupAddDefaults, data, opts))
	if err != nil {
		return nil, err
	}
	return entryResult(resp)
}

// AddWithDescription creates group name with only a description.
func (r *GroupRepository) AddWithDescription(ctx context.Context, name, description string) (Entry, error) {
	return r.Add(ctx, name, map[string]any{"description": description}, nil)
}

// Mod updates group cn with the attributes in data.
func (r *GroupRepository) Mod(ctx context.Context, cn string, data map[string]any, opts Options) (Entry, error) {
	resp, err := r.send(ctx, r.request("mod", []string{cn}, groupModDefaults, data, opts))
	if err != nil {
		return nil, err
	}
	return entryResult(resp)
}

// Del runs group_del for the groups in args.
func (r *GroupRepository) Del(ctx context.Context, args []string, opts Options) (*rpc.ResponseBody, error) {
	return r.send(ctx, r.request("del", args, groupDelDefaults, opts))
}

// AddMember adds user uid to group.
func (r *GroupRepository) AddMember(ctx context.Context, group, uid string) (*MembershipResult, error) {
	return r.AddMembers(ctx, group, MemberSet{Users: []string{uid}})
}

// RemoveMember removes user uid from group.
func (r *GroupRepository) RemoveMember(ctx context.Context, group, uid string) (*MembershipResult, error) {
	return r.RemoveMembers(ctx, group, MemberSet{Users: []string{uid}})
}

// AddMembers adds users, groups and services to group. A response whose
// completed count is zero is returned as an *rpc.RPCError listing what failed.
func (r *GroupRepository) AddMembers(ctx context.Context, group string, members MemberSet) (*MembershipResult, error) {
	return r.changeMembers(ctx, "add_member", "adding", group, members)
}

// RemoveMembers removes users, groups and services from group.
func (r *GroupRepository) RemoveMembers(ctx context.Context, group string, members MemberSet) (*MembershipResult, error) {
	return r.changeMembers(ctx, "remove_member", "removing", group, members)
}

func (r *GroupRepository) changeMembers(ctx context.Context, op, verb, group string, members MemberSet) (*MembershipResult, error) {
	if members.IsEmpty() {
		return nil, &rpc.ConfigurationError{Field: "members", Message: "at least one member is required"}
	}

	body := r.request(op, []string{group}, groupMemberDefaults, members.options())
	resp, err := r.send(ctx, body)
	if err != nil {
		return nil, err
	}

	result, err := decodeMembershipResult(resp)
	if err != nil {
		return nil, err
	}
	if err := checkMembership(body.Method(), verb, group, result); err != nil {
		tflog.Debug(ctx, "Group membership change incomplete", map[string]any{
			"group":  group,
			"method": body.Method(),
			"failed": len(result.Failed),
		})
		return result, err
	}
	return result, nil
}

// SetMembers makes the direct members of group exactly desired, removing
// first and then adding. Kinds left nil in desired are compared as empty.
func (r *GroupRepository) SetMembers(ctx context.Context, group string, desired MemberSet) (MembershipDelta, error) {
	entry, ok, err := r.Get(ctx, group, Options{"no_members": false})
	if err != nil {
		return MembershipDelta{}, err
	}
	if !ok {
		return MembershipDelta{}, &rpc.RPCError{
			Method:  r.method("show"),
			Name:    rpc.NotFoundErrorName,
			Message: group + ": group not found",
		}
	}

	delta := CalculateMembershipDelta(MembersOf(entry), desired)
	if delta.IsEmpty() {
		return delta, nil
	}

	tflog.Debug(ctx, "Applying group membership delta", map[string]any{
		"group":           group,
		"add_users":       delta.ToAdd.Users,
		"add_groups":      delta.ToAdd.Groups,
		"add_services":    delta.ToAdd.Services,
		"remove_users":    delta.ToRemove.Users,
		"remove_groups":   delta.ToRemove.Groups,
		"remove_services": delta.ToRemove.Services,
	})

	if !delta.ToRemove.IsEmpty() {
		if _, err := r.RemoveMembers(ctx, group, delta.ToRemove); err != nil {
			return delta, err
		}
	}
	if !delta.ToAdd.IsEmpty() {
		if _, err := r.AddMembers(ctx, group, delta.ToAdd); err != nil {
			return delta, err
		}
	}
	return delta, nil
}
