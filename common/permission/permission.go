// Package permission holds the normalized role-permission snapshot of a
// session and the predicate used to gate dashboard actions.
package permission

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Grant is one feature with its allowed actions, in display form
type Grant struct {
	Feature     string   `json:"feature"`
	Permissions []string `json:"permissions"`
}

// Set maps feature -> permissions. Lookups are case-insensitive.
// The zero value is an empty set that denies everything.
type Set struct {
	grants map[string]*grantEntry
}

type grantEntry struct {
	name  string
	perms map[string]string // lower -> display
}

var (
	featureKeys    = []string{"featureName", "feature", "name"}
	permissionKeys = []string{"permissionName", "permission", "name"}
	wrapperKeys    = []string{"rolePermissions", "features", "data"}
)

// Normalize converts a backend role payload into a Set. The payload may be a
// list of features or a single feature object, and each feature's
// permissions may likewise be a list or a single object (or plain strings).
// Unknown or malformed entries are skipped.
func Normalize(raw []byte) Set {
	s := Set{}
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return s
	}
	root := gjson.ParseBytes(raw)

	if root.IsObject() {
		for _, k := range wrapperKeys {
			if inner := root.Get(k); inner.Exists() && (inner.IsArray() || inner.IsObject()) {
				root = inner
				break
			}
		}
	}

	eachItem(root, func(feature gjson.Result) {
		name := firstString(feature, featureKeys)
		if name == "" {
			return
		}
		perms := feature.Get("permissions")
		if !perms.Exists() {
			perms = feature.Get("permissionList")
		}
		eachItem(perms, func(p gjson.Result) {
			var perm string
			if p.Type == gjson.String {
				perm = p.String()
			} else {
				perm = firstString(p, permissionKeys)
			}
			s.add(name, perm)
		})
		// a feature with no permissions is still recorded
		s.ensure(name)
	})
	return s
}

// FromGrants builds a Set from display-form grants
func FromGrants(grants []Grant) Set {
	s := Set{}
	for _, g := range grants {
		s.ensure(g.Feature)
		for _, p := range g.Permissions {
			s.add(g.Feature, p)
		}
	}
	return s
}

// HasPermission reports whether feature/perm is granted. An empty set denies.
func (s Set) HasPermission(feature, perm string) bool {
	if len(s.grants) == 0 {
		return false
	}
	g, ok := s.grants[key(feature)]
	if !ok {
		return false
	}
	_, ok = g.perms[key(perm)]
	return ok
}

// HasFeature reports whether any permission is granted on feature
func (s Set) HasFeature(feature string) bool {
	g, ok := s.grants[key(feature)]
	return ok && len(g.perms) > 0
}

// Empty reports whether nothing is granted
func (s Set) Empty() bool {
	return len(s.grants) == 0
}

// Grants returns the set in display form, sorted by feature then permission
func (s Set) Grants() []Grant {
	out := make([]Grant, 0, len(s.grants))
	for _, g := range s.grants {
		perms := make([]string, 0, len(g.perms))
		for _, p := range g.perms {
			perms = append(perms, p)
		}
		sort.Strings(perms)
		out = append(out, Grant{Feature: g.name, Permissions: perms})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Grants())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	*s = Normalize(data)
	return nil
}

func (s *Set) ensure(feature string) *grantEntry {
	feature = strings.TrimSpace(feature)
	if feature == "" {
		return nil
	}
	if s.grants == nil {
		s.grants = make(map[string]*grantEntry)
	}
	k := key(feature)
	g, ok := s.grants[k]
	if !ok {
		g = &grantEntry{name: feature, perms: make(map[string]string)}
		s.grants[k] = g
	}
	return g
}

func (s *Set) add(feature, perm string) {
	perm = strings.TrimSpace(perm)
	if perm == "" {
		return
	}
	if g := s.ensure(feature); g != nil {
		g.perms[key(perm)] = perm
	}
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func eachItem(r gjson.Result, fn func(gjson.Result)) {
	switch {
	case r.IsArray():
		r.ForEach(func(_, v gjson.Result) bool {
			fn(v)
			return true
		})
	case r.IsObject(), r.Type == gjson.String:
		fn(r)
	}
}

func firstString(r gjson.Result, keys []string) string {
	for _, k := range keys {
		if v := r.Get(k); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
