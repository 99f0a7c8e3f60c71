package ipatest

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/isometry/go-freeipa/rpc"
)

// BaseDN is the suffix of every entry the directory serves.
const BaseDN = "dc=example,dc=test"

// controlOptions are command flags rather than attributes.
var controlOptions = map[string]bool{
	"all": true, "raw": true, "no_members": true, "noprivate": true, "random": true,
	"rights": true, "version": true, "whoami": true, "pkey_only": true, "private": true,
	"posix": true, "external": true, "nonposix": true,
}

type group struct {
	attrs  map[string][]string
	users  []string
	groups []string
}

// Directory is an in-memory user and group store answering user_* and
// group_* commands the way FreeIPA shapes them.
type Directory struct {
	mu     sync.Mutex
	users  map[string]map[string][]string
	groups map[string]*group
}

// ServeDirectory registers user and group handlers on s backed by a new
// Directory holding the admin user and the admins and ipausers groups.
func (s *Server) ServeDirectory() *Directory {
	d := &Directory{
		users:  make(map[string]map[string][]string),
		groups: make(map[string]*group),
	}
	d.users[DefaultUser] = map[string][]string{
		"uid":           {DefaultUser},
		"cn":            {"Administrator"},
		"sn":            {"Administrator"},
		"uidnumber":     {"1000"},
		"gidnumber":     {"1000"},
		"homedirectory": {"/home/admin"},
		"loginshell":    {"/bin/bash"},
	}
	d.groups["admins"] = &group{
		attrs: map[string][]string{"cn": {"admins"}, "description": {"Account administrators group"}, "gidnumber": {"1000"}},
		users: []string{DefaultUser},
	}
	d.groups["ipausers"] = &group{
		attrs: map[string][]string{"cn": {"ipausers"}, "description": {"Default group for all users"}},
	}

	for method, h := range map[string]Handler{
		"user_find":           d.userFind,
		"user_show":           d.userShow,
		"user_add":            d.userAdd,
		"user_mod":            d.userMod,
		"user_del":            d.userDel,
		"group_find":          d.groupFind,
		"group_show":          d.groupShow,
		"group_add":           d.groupAdd,
		"group_mod":           d.groupMod,
		"group_del":           d.groupDel,
		"group_add_member":    d.groupAddMember,
		"group_remove_member": d.groupRemoveMember,
	} {
		s.Handle(method, h)
	}
	return d
}

// AddUser stores a user with the given attributes.
func (d *Directory) AddUser(uid string, attrs map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := map[string][]string{"uid": {uid}}
	for k, v := range attrs {
		entry[k] = []string{v}
	}
	d.users[uid] = entry
}

// HasUser reports whether uid exists.
func (d *Directory) HasUser(uid string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.users[uid]
	return ok
}

// GroupMembers returns the direct user and group members of cn.
func (d *Directory) GroupMembers(cn string) (users, groups []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[cn]
	if !ok {
		return nil, nil
	}
	return slices.Clone(g.users), slices.Clone(g.groups)
}

func userDN(uid string) string { return "uid=" + uid + ",cn=users,cn=accounts," + BaseDN }
func groupDN(cn string) string { return "cn=" + cn + ",cn=groups,cn=accounts," + BaseDN }

func duplicate(kind, name string) *rpc.ErrorPayload {
	return &rpc.ErrorPayload{Name: "DuplicateEntry", Code: 4002, Message: fmt.Sprintf("%s with name %q already exists", kind, name)}
}

func emptyModlist() *rpc.ErrorPayload {
	return &rpc.ErrorPayload{Name: "EmptyModlist", Code: 4202, Message: "no modifications to be performed"}
}

func requireArgs(body rpc.RequestBody, n int) *rpc.ErrorPayload {
	if len(body.Arguments()) < n {
		return &rpc.ErrorPayload{Name: "RequirementError", Code: 3007, Message: fmt.Sprintf("'%s' is required", body.Method())}
	}
	return nil
}

func boolOption(body rpc.RequestBody, name string) bool {
	v, _ := body.Option(name)
	b, _ := v.(bool)
	return b
}

// optionStrings renders an option value as a list of strings.
func optionStrings(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(val)}
	}
}

// attributeOptions returns the options of body that are attributes.
func attributeOptions(body rpc.RequestBody) map[string][]string {
	attrs := make(map[string][]string)
	for k, v := range body.Options() {
		if controlOptions[k] {
			continue
		}
		attrs[k] = optionStrings(v)
	}
	return attrs
}

func render(attrs map[string][]string) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = slices.Clone(v)
	}
	return out
}

func matches(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func (d *Directory) userEntry(uid string) map[string]any {
	entry := render(d.users[uid])
	entry["dn"] = userDN(uid)

	var memberOf []string
	for cn, g := range d.groups {
		if slices.Contains(g.users, uid) {
			memberOf = append(memberOf, cn)
		}
	}
	if len(memberOf) > 0 {
		sort.Strings(memberOf)
		entry["memberof_group"] = memberOf
	}
	return entry
}

func (d *Directory) groupEntry(cn string, raw, noMembers bool) map[string]any {
	g := d.groups[cn]
	entry := render(g.attrs)
	entry["dn"] = groupDN(cn)
	if noMembers {
		return entry
	}

	if raw {
		var dns []string
		for _, uid := range g.users {
			dns = append(dns, userDN(uid))
		}
		for _, child := range g.groups {
			dns = append(dns, groupDN(child))
		}
		if len(dns) > 0 {
			entry["member"] = dns
		}
		return entry
	}

	if len(g.users) > 0 {
		entry["member_user"] = slices.Clone(g.users)
	}
	if len(g.groups) > 0 {
		entry["member_group"] = slices.Clone(g.groups)
	}
	return entry
}

func findResult(entries []map[string]any, kind string) map[string]any {
	noun := kind
	if len(entries) != 1 {
		noun += "s"
	}
	return map[string]any{
		"result":    entries,
		"count":     len(entries),
		"truncated": false,
		"summary":   fmt.Sprintf("%d %s matched", len(entries), noun),
	}
}

func (d *Directory) userFind(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()

	criteria := ""
	if args := body.Arguments(); len(args) > 0 {
		criteria = strings.ToLower(args[0])
	}
	filters := attributeOptions(body)

	uids := make([]string, 0, len(d.users))
	for uid := range d.users {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	entries := []map[string]any{}
	for _, uid := range uids {
		if criteria != "" && !strings.Contains(strings.ToLower(uid), criteria) {
			continue
		}
		if !d.userMatches(uid, filters) {
			continue
		}
		entries = append(entries, d.userEntry(uid))
	}
	return findResult(entries, "user"), nil
}

func (d *Directory) userMatches(uid string, filters map[string][]string) bool {
	attrs := d.users[uid]
	for field, want := range filters {
		if len(want) == 0 {
			continue
		}
		switch field {
		case "in_group", "not_in_group":
			g, ok := d.groups[want[0]]
			member := ok && slices.Contains(g.users, uid)
			if member != (field == "in_group") {
				return false
			}
		default:
			if !matches(attrs[field], want[0]) {
				return false
			}
		}
	}
	return true
}

func (d *Directory) userShow(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	if err := requireArgs(body, 1); err != nil {
		return nil, err
	}
	uid := body.Arguments()[0]

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[uid]; !ok {
		return nil, NotFound(uid + ": user not found")
	}
	return map[string]any{"result": d.userEntry(uid), "value": uid, "summary": nil}, nil
}

func (d *Directory) userAdd(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	if err := requireArgs(body, 1); err != nil {
		return nil, err
	}
	uid := body.Arguments()[0]

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[uid]; ok {
		return nil, duplicate("user", uid)
	}
	attrs := attributeOptions(body)
	attrs["uid"] = []string{uid}
	d.users[uid] = attrs
	d.groups["ipausers"].users = append(d.groups["ipausers"].users, uid)

	return map[string]any{
		"result":  d.userEntry(uid),
		"value":   uid,
		"summary": fmt.Sprintf("Added user %q", uid),
	}, nil
}

func (d *Directory) userMod(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	if err := requireArgs(body, 1); err != nil {
		return nil, err
	}
	uid := body.Arguments()[0]

	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.users[uid]
	if !ok {
		return nil, NotFound(uid + ": user not found")
	}
	changes := attributeOptions(body)
	if len(changes) == 0 {
		return nil, emptyModlist()
	}
	for k, v := range changes {
		entry[k] = v
	}

	return map[string]any{
		"result":  d.userEntry(uid),
		"value":   uid,
		"summary": fmt.Sprintf("Modified user %q", uid),
	}, nil
}

func (d *Directory) userDel(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	if err := requireArgs(body, 1); err != nil {
		return nil, err
	}
	args := body.Arguments()

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, uid := range args {
		if _, ok := d.users[uid]; !ok {
			return nil, NotFound(uid + ": user not found")
		}
	}
	for _, uid := range args {
		delete(d.users, uid)
		for _, g := range d.groups {
			g.users = slices.DeleteFunc(g.users, func(u string) bool { return u == uid })
		}
	}

	quoted := make([]string, len(args))
	for i, uid := range args {
		quoted[i] = fmt.Sprintf("%q", uid)
	}
	return map[string]any{
		"result":  map[string]any{"failed": []string{}},
		"value":   args,
		"summary": "Deleted user " + strings.Join(quoted, ","),
	}, nil
}

func (d *Directory) groupFind(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()

	criteria := ""
	if args := body.Arguments(); len(args) > 0 {
		criteria = strings.ToLower(args[0])
	}
	filters := attributeOptions(body)
	noMembers := boolOption(body, "no_members")

	names := make([]string, 0, len(d.groups))
	for cn := range d.groups {
		names = append(names, cn)
	}
	sort.Strings(names)

	entries := []map[string]any{}
	for _, cn := range names {
		if criteria != "" && !strings.Contains(strings.ToLower(cn), criteria) {
			continue
		}
		if !d.groupMatches(cn, filters) {
			continue
		}
		entries = append(entries, d.groupEntry(cn, false, noMembers))
	}
	return findResult(entries, "group"), nil
}

func (d *Directory) groupMatches(cn string, filters map[string][]string) bool {
	g := d.groups[cn]
	for field, want := range filters {
		if len(want) == 0 {
			continue
		}
		switch field {
		case "user":
			if !slices.Contains(g.users, want[0]) {
				return false
			}
		case "no_user":
			if slices.Contains(g.users, want[0]) {
				return false
			}
		default:
			if !matches(g.attrs[field], want[0]) {
				return false
			}
		}
	}
	return true
}

func (d *Directory) groupShow(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	if err := requireArgs(body, 1); err != nil {
		return nil, err
	}
	cn := body.Arguments()[0]

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.groups[cn]; !ok {
		return nil, NotFound(cn + ": group not found")
	}
	entry := d.groupEntry(cn, boolOption(body, "raw"), boolOption(body, "no_members"))
	return map[string]any{"result": entry, "value": cn, "summary": nil}, nil
}

func (d *Directory) groupAdd(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	if err := requireArgs(body, 1); err != nil {
		return nil, err
	}
	cn := body.Arguments()[0]

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.groups[cn]; ok {
		return nil, duplicate("group", cn)
	}
	attrs := attributeOptions(body)
	attrs["cn"] = []string{cn}
	d.groups[cn] = &group{attrs: attrs}

	return map[string]any{
		"result":  d.groupEntry(cn, false, false),
		"value":   cn,
		"summary": fmt.Sprintf("Added group %q", cn),
	}, nil
}

func (d *Directory) groupMod(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	if err := requireArgs(body, 1); err != nil {
		return nil, err
	}
	cn := body.Arguments()[0]

	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups[cn]
	if !ok {
		return nil, NotFound(cn + ": group not found")
	}
	changes := attributeOptions(body)
	if len(changes) == 0 {
		return nil, emptyModlist()
	}
	for k, v := range changes {
		g.attrs[k] = v
	}

	return map[string]any{
		"result":  d.groupEntry(cn, false, false),
		"value":   cn,
		"summary": fmt.Sprintf("Modified group %q", cn),
	}, nil
}

func (d *Directory) groupDel(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	if err := requireArgs(body, 1); err != nil {
		return nil, err
	}
	args := body.Arguments()

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, cn := range args {
		if _, ok := d.groups[cn]; !ok {
			return nil, NotFound(cn + ": group not found")
		}
	}
	for _, cn := range args {
		delete(d.groups, cn)
	}

	return map[string]any{
		"result":  map[string]any{"failed": []string{}},
		"value":   args,
		"summary": fmt.Sprintf("Deleted group %q", strings.Join(args, ",")),
	}, nil
}

func (d *Directory) groupAddMember(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	return d.changeMembers(body, true)
}

func (d *Directory) groupRemoveMember(body rpc.RequestBody) (any, *rpc.ErrorPayload) {
	return d.changeMembers(body, false)
}

func (d *Directory) changeMembers(body rpc.RequestBody, add bool) (any, *rpc.ErrorPayload) {
	if err := requireArgs(body, 1); err != nil {
		return nil, err
	}
	cn := body.Arguments()[0]
	userOpt, _ := body.Option("user")
	groupOpt, _ := body.Option("group")

	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups[cn]
	if !ok {
		return nil, NotFound(cn + ": group not found")
	}

	completed := 0
	failedUsers := [][]string{}
	failedGroups := [][]string{}

	apply := func(names []string, members *[]string, exists func(string) bool, failed *[][]string) {
		for _, name := range names {
			switch {
			case !exists(name):
				*failed = append(*failed, []string{name, "no such entry"})
			case add && slices.Contains(*members, name):
				*failed = append(*failed, []string{name, "This entry is already a member"})
			case !add && !slices.Contains(*members, name):
				*failed = append(*failed, []string{name, "This entry is not a member"})
			case add:
				*members = append(*members, name)
				completed++
			default:
				*members = slices.DeleteFunc(*members, func(m string) bool { return m == name })
				completed++
			}
		}
	}

	apply(optionStrings(userOpt), &g.users, func(uid string) bool { _, ok := d.users[uid]; return ok }, &failedUsers)
	apply(optionStrings(groupOpt), &g.groups, func(child string) bool { _, ok := d.groups[child]; return ok }, &failedGroups)

	return map[string]any{
		"result": d.groupEntry(cn, false, boolOption(body, "no_members")),
		"failed": map[string]any{
			"member": map[string]any{
				"user":  failedUsers,
				"group": failedGroups,
			},
		},
		"completed": completed,
	}, nil
}
