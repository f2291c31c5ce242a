package model

import "context"

// AdminOrgs is the set of org ids directly granted to an admin, before any
// hierarchy expansion.
type AdminOrgs struct {
	Districts []string `json:"districts,omitempty"`
	Schools   []string `json:"schools,omitempty"`
	Classes   []string `json:"classes,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	Families  []string `json:"families,omitempty"`
}

// IDs returns the granted ids for one org type. Safe on a nil receiver.
func (a *AdminOrgs) IDs(t OrgType) []string {
	if a == nil {
		return nil
	}
	switch t {
	case OrgDistrict:
		return a.Districts
	case OrgSchool:
		return a.Schools
	case OrgClass:
		return a.Classes
	case OrgGroup:
		return a.Groups
	case OrgFamily:
		return a.Families
	}
	return nil
}

// Empty reports whether nothing is granted.
func (a *AdminOrgs) Empty() bool {
	for _, t := range AllOrgTypes {
		if len(a.IDs(t)) > 0 {
			return false
		}
	}
	return true
}

// AdminOrgsFromMap builds grants from a loosely typed map keyed by
// collection name, as found in token claims or user documents. Keys that do
// not name an org type and non-string ids are ignored.
func AdminOrgsFromMap(raw map[string]any) *AdminOrgs {
	if raw == nil {
		return nil
	}
	out := &AdminOrgs{}
	for key, value := range raw {
		t, err := ParseOrgType(key)
		if err != nil {
			continue
		}
		ids := stringList(value)
		switch t {
		case OrgDistrict:
			out.Districts = ids
		case OrgSchool:
			out.Schools = ids
		case OrgClass:
			out.Classes = ids
		case OrgGroup:
			out.Groups = ids
		case OrgFamily:
			out.Families = ids
		}
	}
	return out
}

func stringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// OrgSets maps org types to id lists, the shape of assignedOrgs and readOrgs.
type OrgSets map[OrgType][]string

// Total counts ids across all org types.
func (s OrgSets) Total() int {
	n := 0
	for _, ids := range s {
		n += len(ids)
	}
	return n
}

// Permissions is the caller's permission context.
type Permissions struct {
	SuperAdmin bool
	AdminOrgs  *AdminOrgs
	// Subject identifies the caller for logging only.
	Subject string
}

type permissionsKey struct{}

// WithPermissions stores permissions on the context.
func WithPermissions(ctx context.Context, p Permissions) context.Context {
	return context.WithValue(ctx, permissionsKey{}, p)
}

// PermissionsFromContext returns the permissions stored by WithPermissions.
func PermissionsFromContext(ctx context.Context) (Permissions, bool) {
	p, ok := ctx.Value(permissionsKey{}).(Permissions)
	return p, ok
}
