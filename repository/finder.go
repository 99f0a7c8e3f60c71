package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/isometry/go-freeipa/rpc"
)

// UserField is a user_find option usable as a single-field filter.
type UserField string

const (
	UserFieldGivenName  UserField = "givenname"
	UserFieldSn         UserField = "sn"
	UserFieldCn         UserField = "cn"
	UserFieldInGroup    UserField = "in_group"
	UserFieldNotInGroup UserField = "not_in_group"
	UserFieldMail       UserField = "mail"
	UserFieldUID        UserField = "uid"
	UserFieldUIDNumber  UserField = "uidnumber"
)

// GroupField is a group_find option usable as a single-field filter.
type GroupField string

const (
	GroupFieldCn          GroupField = "cn"
	GroupFieldDescription GroupField = "description"
	GroupFieldGIDNumber   GroupField = "gidnumber"
	GroupFieldUser        GroupField = "user"
	GroupFieldNoUser      GroupField = "no_user"
	GroupFieldInGroup     GroupField = "in_group"
	GroupFieldNotInGroup  GroupField = "not_in_group"
)

// findByPrefix starts every dynamically dispatched finder name.
const findByPrefix = "findBy"

// fieldRegistry maps the suffix of a findByXxx name, lower-cased, to a field.
type fieldRegistry map[string]string

func newFieldRegistry[F ~string](fields ...F) fieldRegistry {
	reg := make(fieldRegistry, len(fields))
	for _, f := range fields {
		reg.register(string(f))
	}
	return reg
}

// register accepts both the option name and its underscore-free spelling,
// so findByInGroup resolves to in_group.
func (r fieldRegistry) register(field string) {
	r[field] = field
	r[strings.ReplaceAll(field, "_", "")] = field
}

// resolve maps "findByGivenName" to "givenname".
func (r fieldRegistry) resolve(name string) (string, bool) {
	suffix, ok := strings.CutPrefix(name, findByPrefix)
	if !ok || suffix == "" {
		return "", false
	}
	field, ok := r[strings.ToLower(suffix)]
	return field, ok
}

// names lists the finder names the registry accepts, sorted.
func (r fieldRegistry) names() []string {
	seen := make(map[string]bool)
	for _, field := range r {
		seen[field] = true
	}
	out := make([]string, 0, len(seen))
	for field := range seen {
		out = append(out, findByPrefix+field)
	}
	sort.Strings(out)
	return out
}

// NoSuchMethodError is returned by Call for a name that is not a known finder.
type NoSuchMethodError struct {
	Repository string
	Name       string
}

func (e *NoSuchMethodError) Error() string {
	return fmt.Sprintf("call to undefined method %s.%s", e.Repository, e.Name)
}

func (e *NoSuchMethodError) GetCategory() rpc.ErrorCategory {
	return rpc.ErrorCategoryUsage
}

var (
	userFields = newFieldRegistry(
		UserFieldGivenName, UserFieldSn, UserFieldCn, UserFieldInGroup,
		UserFieldNotInGroup, UserFieldMail, UserFieldUID, UserFieldUIDNumber,
	)
	groupFields = newFieldRegistry(
		GroupFieldCn, GroupFieldDescription, GroupFieldGIDNumber, GroupFieldUser,
		GroupFieldNoUser, GroupFieldInGroup, GroupFieldNotInGroup,
	)
)

// callFinder dispatches name through reg to findBy.
func callFinder(ctx context.Context, repo string, reg fieldRegistry, name, value string,
	findBy func(context.Context, string, string) (*FindResult, error),
) (*FindResult, error) {
	field, ok := reg.resolve(name)
	if !ok {
		return nil, &NoSuchMethodError{Repository: repo, Name: name}
	}
	return findBy(ctx, field, value)
}

// UserFinders lists the names UserRepository.Call accepts.
func UserFinders() []string { return userFields.names() }

// GroupFinders lists the names GroupRepository.Call accepts.
func GroupFinders() []string { return groupFields.names() }
