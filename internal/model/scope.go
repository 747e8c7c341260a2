// Package model defines the core data structures for the spendtag application.
package model

import (
	"fmt"
	"strings"
)

// TenantType identifies the kind of tenant that owns a record.
type TenantType string

// Tenant type constants.
const (
	TenantUser         TenantType = "user"
	TenantOrganization TenantType = "organization"
)

// Scope is the (tenant_type, tenant_id) pair that isolates all data access.
type Scope struct {
	Type TenantType `json:"tenant_type"`
	ID   string     `json:"tenant_id"`
}

// NewScope builds a scope from raw strings.
func NewScope(tenantType, tenantID string) Scope {
	return Scope{Type: TenantType(strings.ToLower(strings.TrimSpace(tenantType))), ID: strings.TrimSpace(tenantID)}
}

// Validate reports whether the scope is fully resolved.
func (s Scope) Validate() error {
	switch s.Type {
	case TenantUser, TenantOrganization:
	default:
		return fmt.Errorf("unknown tenant type %q", s.Type)
	}
	if s.ID == "" {
		return fmt.Errorf("tenant id is required")
	}
	return nil
}

// Equal reports whether both scopes name the same tenant.
func (s Scope) Equal(other Scope) bool {
	return s.Type == other.Type && s.ID == other.ID
}

func (s Scope) String() string {
	return string(s.Type) + ":" + s.ID
}

// ResourceType names a kind of taggable entity.
type ResourceType string

// Resource types that may carry tags.
const (
	ResourceTransaction ResourceType = "transaction"
	ResourceAccount     ResourceType = "account"
	ResourceBudget      ResourceType = "budget"
	ResourceFee         ResourceType = "fee"
)

// ResourceTypes lists every recognized resource type.
func ResourceTypes() []ResourceType {
	return []ResourceType{ResourceTransaction, ResourceAccount, ResourceBudget, ResourceFee}
}

// Valid reports whether the resource type is recognized.
func (r ResourceType) Valid() bool {
	switch r {
	case ResourceTransaction, ResourceAccount, ResourceBudget, ResourceFee:
		return true
	}
	return false
}

// ResourceRef points at a single taggable entity.
type ResourceRef struct {
	Type ResourceType `json:"resource_type"`
	ID   string       `json:"resource_id"`
}

func (r ResourceRef) String() string {
	return string(r.Type) + "/" + r.ID
}
