package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Entry is a FreeIPA entry as returned by *_show, *_add and *_find.
// Outside raw mode most attributes are lists, a few (dn) are scalars.
type Entry map[string]any

// Values returns every value of attr as strings. Scalars become a one-element
// slice; a missing attribute yields nil.
func (e Entry) Values(attr string) []string {
	v, ok := e[attr]
	if !ok || v == nil {
		return nil
	}

	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := stringValue(item); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		if s, ok := stringValue(val); ok {
			return []string{s}
		}
		return nil
	}
}

// First returns the first value of attr, or "" when it is absent.
func (e Entry) First(attr string) string {
	if values := e.Values(attr); len(values) > 0 {
		return values[0]
	}
	return ""
}

// Has reports whether attr is present with at least one value.
func (e Entry) Has(attr string) bool {
	return len(e.Values(attr)) > 0
}

// DN parses the entry's distinguished name.
func (e Entry) DN() (*ldap.DN, error) {
	raw := e.First("dn")
	if raw == "" {
		return nil, fmt.Errorf("entry has no dn")
	}
	dn, err := ldap.ParseDN(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid dn %q: %w", raw, err)
	}
	return dn, nil
}

// stringValue renders the scalar JSON values FreeIPA uses. Binary values
// arrive as {"__base64__": "..."} and are returned in their encoded form.
func stringValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool, float64, int, int64:
		return fmt.Sprint(val), true
	case map[string]any:
		if b64, ok := val["__base64__"].(string); ok {
			return b64, true
		}
		if dn, ok := val["__dn__"].(string); ok {
			return dn, true
		}
	}
	return "", false
}

const (
	usersContainer  = "cn=users,cn=accounts"
	groupsContainer = "cn=groups,cn=accounts"
)

// UserDN builds the DN FreeIPA stores uid under.
func UserDN(uid, baseDN string) string {
	return "uid=" + ldap.EscapeDN(uid) + "," + usersContainer + "," + baseDN
}

// GroupDN builds the DN FreeIPA stores group cn under.
func GroupDN(cn, baseDN string) string {
	return "cn=" + ldap.EscapeDN(cn) + "," + groupsContainer + "," + baseDN
}

// RDNValue returns the value of the first RDN attribute of type attrType.
// For example, RDNValue("uid=bob,cn=users,...", "uid") returns "bob".
func RDNValue(dn, attrType string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid dn %q: %w", dn, err)
	}
	if len(parsed.RDNs) == 0 {
		return "", fmt.Errorf("empty dn")
	}

	for _, attr := range parsed.RDNs[0].Attributes {
		if strings.EqualFold(attr.Type, attrType) {
			return attr.Value, nil
		}
	}
	return "", fmt.Errorf("dn %q has no %s attribute in its first RDN", dn, attrType)
}

// SameDN compares two DNs ignoring attribute type and value case.
func SameDN(a, b string) bool {
	da, err := ldap.ParseDN(a)
	if err != nil {
		return false
	}
	db, err := ldap.ParseDN(b)
	if err != nil {
		return false
	}
	return da.EqualFold(db)
}

// classifyMemberDN reports whether dn names a user or a group entry.
func classifyMemberDN(dn string) (kind string, name string, ok bool) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) < 3 {
		return "", "", false
	}

	parent := &ldap.DN{RDNs: parsed.RDNs[1:3]}
	rdn := parsed.RDNs[0]
	if len(rdn.Attributes) != 1 {
		return "", "", false
	}

	users, _ := ldap.ParseDN(usersContainer)
	groups, _ := ldap.ParseDN(groupsContainer)

	switch {
	case parent.EqualFold(users) && strings.EqualFold(rdn.Attributes[0].Type, "uid"):
		return "user", rdn.Attributes[0].Value, true
	case parent.EqualFold(groups) && strings.EqualFold(rdn.Attributes[0].Type, "cn"):
		return "group", rdn.Attributes[0].Value, true
	}
	return "", "", false
}
