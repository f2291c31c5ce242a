// Package model holds the domain types shared by the query and access layers:
// organization types, admin grants and the caller's permission context.
package model

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
)

// OrgType enumerates the organization collections.
type OrgType int

const (
	OrgDistrict OrgType = iota + 1
	OrgSchool
	OrgClass
	OrgGroup
	OrgFamily
)

// AllOrgTypes lists every organization type in hierarchy order.
var AllOrgTypes = []OrgType{OrgDistrict, OrgSchool, OrgClass, OrgGroup, OrgFamily}

type orgTypeInfo struct {
	singular   string
	collection string
	// parentField is the field on the document that points at its hierarchical parent.
	parentField string
}

var orgTypes = map[OrgType]orgTypeInfo{
	OrgDistrict: {singular: "district", collection: "districts"},
	OrgSchool:   {singular: "school", collection: "schools", parentField: "districtId"},
	OrgClass:    {singular: "class", collection: "classes", parentField: "schoolId"},
	OrgGroup:    {singular: "group", collection: "groups"},
	OrgFamily:   {singular: "family", collection: "families"},
}

// ParseOrgType accepts the singular or plural name of an org type, case-insensitively.
func ParseOrgType(s string) (OrgType, error) {
	key := inflection.Singular(strings.ToLower(strings.TrimSpace(s)))
	for t, info := range orgTypes {
		if info.singular == key {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown org type %q", s)
}

// Valid reports whether t is one of the declared org types.
func (t OrgType) Valid() bool {
	_, ok := orgTypes[t]
	return ok
}

// Collection returns the collection name, which is also the key used in
// adminOrgs, assignedOrgs and readOrgs maps.
func (t OrgType) Collection() string { return orgTypes[t].collection }

// String returns the singular name.
func (t OrgType) String() string {
	if info, ok := orgTypes[t]; ok {
		return info.singular
	}
	return fmt.Sprintf("OrgType(%d)", int(t))
}

// ParentField returns the field holding the parent id: districtId for
// schools, schoolId for classes, empty otherwise.
func (t OrgType) ParentField() string { return orgTypes[t].parentField }

// Hierarchical reports whether t is part of the district/school/class chain.
func (t OrgType) Hierarchical() bool {
	return t == OrgDistrict || t == OrgSchool || t == OrgClass
}

// MarshalText encodes the org type by its collection name.
func (t OrgType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid org type %d", int(t))
	}
	return []byte(t.Collection()), nil
}

func (t *OrgType) UnmarshalText(b []byte) error {
	parsed, err := ParseOrgType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
