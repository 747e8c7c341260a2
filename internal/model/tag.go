package model

import "time"

// TagType is the namespace a tag was assigned under.
type TagType string

// Tag namespaces.
const (
	TagTypeUser         TagType = "user"
	TagTypeOrganization TagType = "organization"
	TagTypeRole         TagType = "role"
	TagTypeCategory     TagType = "category"
)

// Valid reports whether the tag type is recognized.
func (t TagType) Valid() bool {
	switch t {
	case TagTypeUser, TagTypeOrganization, TagTypeRole, TagTypeCategory:
		return true
	}
	return false
}

// Metadata keys written on system tags.
const (
	MetaAutoGenerated = "auto_generated"
	MetaRuleVersion   = "rule_version"
)

// Tag is a tenant-scoped key/value fact attached to a resource.
// Tags are never hard-deleted; removal clears IsActive.
type Tag struct {
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Scope        Scope          `json:"scope"`
	Resource     ResourceRef    `json:"resource"`
	ID           string         `json:"id"`
	Type         TagType        `json:"tag_type"`
	Key          string         `json:"tag_key"`
	Value        string         `json:"tag_value"`
	Label        string         `json:"label,omitempty"`
	Description  string         `json:"description,omitempty"`
	Color        string         `json:"color,omitempty"`
	SingleValued bool           `json:"single_valued"`
	IsActive     bool           `json:"is_active"`
}

// AutoGenerated reports whether the tag was written by the auto-tagger.
func (t Tag) AutoGenerated() bool {
	v, ok := t.Metadata[MetaAutoGenerated].(bool)
	return ok && v
}

// TagAttributes are the optional descriptive fields of a tag.
type TagAttributes struct {
	Metadata    map[string]any `json:"metadata,omitempty"`
	Type        TagType        `json:"tag_type"`
	Label       string         `json:"label,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       string         `json:"color,omitempty"`
}

// TagWriteOutcome reports what an upsert did.
type TagWriteOutcome string

// Upsert outcomes.
const (
	TagCreated   TagWriteOutcome = "created"
	TagUpdated   TagWriteOutcome = "updated"
	TagUnchanged TagWriteOutcome = "unchanged"
)
