package repository

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/isometry/go-freeipa/rpc"
)

// MemberSet names the members of a group by kind.
type MemberSet struct {
	Users    []string `json:"users,omitempty"`
	Groups   []string `json:"groups,omitempty"`
	Services []string `json:"services,omitempty"`
}

// IsEmpty reports whether the set names no member at all.
func (m MemberSet) IsEmpty() bool {
	return len(m.Users) == 0 && len(m.Groups) == 0 && len(m.Services) == 0
}

// options renders the set as group_add_member / group_remove_member options.
// Empty kinds are omitted.
func (m MemberSet) options() Options {
	opts := make(Options)
	if len(m.Users) > 0 {
		opts["user"] = slices.Clone(m.Users)
	}
	if len(m.Groups) > 0 {
		opts["group"] = slices.Clone(m.Groups)
	}
	if len(m.Services) > 0 {
		opts["service"] = slices.Clone(m.Services)
	}
	return opts
}

// MembersOf reads the direct members of a group entry. It understands both
// the member_user/member_group lists FreeIPA returns normally and the member
// DNs returned in raw mode.
func MembersOf(entry Entry) MemberSet {
	set := MemberSet{
		Users:    entry.Values("member_user"),
		Groups:   entry.Values("member_group"),
		Services: entry.Values("member_service"),
	}

	for _, dn := range entry.Values("member") {
		kind, name, ok := classifyMemberDN(dn)
		if !ok {
			continue
		}
		switch kind {
		case "user":
			set.Users = append(set.Users, name)
		case "group":
			set.Groups = append(set.Groups, name)
		}
	}

	set.Users = uniqueSorted(set.Users)
	set.Groups = uniqueSorted(set.Groups)
	set.Services = uniqueSorted(set.Services)
	return set
}

// MembershipDelta is the change needed to move a group from its current
// members to a desired set.
type MembershipDelta struct {
	ToAdd    MemberSet `json:"to_add"`
	ToRemove MemberSet `json:"to_remove"`
}

// IsEmpty reports whether no change is needed.
func (d MembershipDelta) IsEmpty() bool {
	return d.ToAdd.IsEmpty() && d.ToRemove.IsEmpty()
}

// CalculateMembershipDelta compares current and desired members kind by kind.
// Names compare case-insensitively, as FreeIPA does.
func CalculateMembershipDelta(current, desired MemberSet) MembershipDelta {
	var delta MembershipDelta
	delta.ToAdd.Users, delta.ToRemove.Users = setDifferences(current.Users, desired.Users)
	delta.ToAdd.Groups, delta.ToRemove.Groups = setDifferences(current.Groups, desired.Groups)
	delta.ToAdd.Services, delta.ToRemove.Services = setDifferences(current.Services, desired.Services)
	return delta
}

func setDifferences(current, desired []string) (toAdd, toRemove []string) {
	currentMap := make(map[string]string) // lowercase -> original
	desiredMap := make(map[string]string)

	for _, name := range current {
		currentMap[strings.ToLower(name)] = name
	}
	for _, name := range desired {
		desiredMap[strings.ToLower(name)] = name
	}

	for lower, original := range desiredMap {
		if _, exists := currentMap[lower]; !exists {
			toAdd = append(toAdd, original)
		}
	}
	for lower, original := range currentMap {
		if _, exists := desiredMap[lower]; !exists {
			toRemove = append(toRemove, original)
		}
	}

	sort.Strings(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	sort.Strings(out)
	return slices.Compact(out)
}

// MembershipResult is the result of group_add_member or group_remove_member.
type MembershipResult struct {
	Completed int
	Failed    []MemberFailure
	Entry     Entry
}

// MemberFailure is one member the server refused to add or remove.
type MemberFailure struct {
	Kind   string // user, group or service
	Name   string
	Reason string
}

func (f MemberFailure) String() string {
	if f.Reason == "" {
		return f.Name
	}
	return f.Name + " " + f.Reason
}

// decodeMembershipResult reads {"completed": n, "failed": {"member": {...}}, "result": {...}}.
func decodeMembershipResult(resp *rpc.ResponseBody) (*MembershipResult, error) {
	var raw struct {
		Completed int `json:"completed"`
		Failed    struct {
			Member map[string][][]string `json:"member"`
		} `json:"failed"`
		Result Entry `json:"result"`
	}
	if err := resp.DecodeResult(&raw); err != nil {
		return nil, err
	}

	result := &MembershipResult{Completed: raw.Completed, Entry: raw.Result}

	// group failures first, then user, then anything else in name order
	kinds := make([]string, 0, len(raw.Failed.Member))
	for kind := range raw.Failed.Member {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool {
		return kindOrder(kinds[i]) < kindOrder(kinds[j]) ||
			(kindOrder(kinds[i]) == kindOrder(kinds[j]) && kinds[i] < kinds[j])
	})

	for _, kind := range kinds {
		for _, pair := range raw.Failed.Member[kind] {
			if len(pair) == 0 {
				continue
			}
			failure := MemberFailure{Kind: kind, Name: pair[0]}
			if len(pair) > 1 {
				failure.Reason = strings.Join(pair[1:], " ")
			}
			result.Failed = append(result.Failed, failure)
		}
	}

	return result, nil
}

func kindOrder(kind string) int {
	switch kind {
	case "group":
		return 0
	case "user":
		return 1
	default:
		return 2
	}
}

// checkMembership turns completed == 0 into an error naming the group.
func checkMembership(method, verb, group string, result *MembershipResult) error {
	if result.Completed > 0 {
		return nil
	}

	msg := fmt.Sprintf("Error %s members %s group %q.", verb, prepositionFor(verb), group)
	if len(result.Failed) > 0 {
		details := make([]string, len(result.Failed))
		for i, f := range result.Failed {
			details[i] = f.String()
		}
		msg += " Details: " + strings.Join(details, " ")
	}

	return &rpc.RPCError{Method: method, Message: msg}
}

func prepositionFor(verb string) string {
	if verb == "removing" {
		return "from"
	}
	return "to"
}
