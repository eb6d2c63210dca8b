// Package content models the configuration entities a SOAR platform exports
// and turns a snapshot of them into a deterministic repository file layout.
package content

import "sort"

// Type identifies a category of platform configuration content.
type Type string

// Content types recognized by the exporter. The set mirrors the platform's
// job toggles: each type can be selected or excluded independently.
const (
	TypeIntegrations         Type = "Integrations"
	TypePlaybooks            Type = "Playbooks"
	TypeJobs                 Type = "Jobs"
	TypeConnectors           Type = "Connectors"
	TypeSimulatedCases       Type = "Simulated Cases"
	TypeIntegrationInstances Type = "Integration Instances"
	TypeVisualFamilies       Type = "Visual Families"
	TypeMappings             Type = "Mappings"
	TypeEnvironments         Type = "Environments"
	TypeDynamicParameters    Type = "Dynamic Parameters"
	TypeLogo                 Type = "Logo"
	TypeCaseTags             Type = "Case Tags"
	TypeCaseStages           Type = "Case Stages"
	TypeCaseTitleSettings    Type = "Case Title Settings"
	TypeCaseCloseReasons     Type = "Case Close Reasons"
	TypeNetworks             Type = "Networks"
	TypeDomains              Type = "Domains"
	TypeCustomLists          Type = "Custom Lists"
	TypeEmailTemplates       Type = "Email Templates"
	TypeBlacklists           Type = "Blacklists"
	TypeSLARecords           Type = "SLA Records"
)

// AllTypes returns every content type the exporter knows about, in a stable
// order. Useful for "select all" configurations.
func AllTypes() []Type {
	return []Type{
		TypeIntegrations,
		TypePlaybooks,
		TypeJobs,
		TypeConnectors,
		TypeSimulatedCases,
		TypeIntegrationInstances,
		TypeVisualFamilies,
		TypeMappings,
		TypeEnvironments,
		TypeDynamicParameters,
		TypeLogo,
		TypeCaseTags,
		TypeCaseStages,
		TypeCaseTitleSettings,
		TypeCaseCloseReasons,
		TypeNetworks,
		TypeDomains,
		TypeCustomLists,
		TypeEmailTemplates,
		TypeBlacklists,
		TypeSLARecords,
	}
}

// IsValid reports whether t is one of the known content types.
func (t Type) IsValid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// TypeSet is a selection of content types. The zero value selects nothing.
type TypeSet map[Type]struct{}

// NewTypeSet builds a TypeSet from the given types.
func NewTypeSet(types ...Type) TypeSet {
	s := make(TypeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

// Contains reports whether t is selected.
func (s TypeSet) Contains(t Type) bool {
	_, ok := s[t]
	return ok
}

// Types returns the selected types in a stable order.
func (s TypeSet) Types() []Type {
	types := make([]Type, 0, len(s))
	for t := range s {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Item is a single configuration entity produced by the platform collaborator.
// The payload is opaque to the sync core; it is hashed and published as-is
// (after redaction). The identifier is unique within its type and doubles as
// the entity's relative path inside the type's directory, so multi-file
// entities such as integrations can contribute several items sharing an
// identifier prefix (e.g. "ActiveDirectory/Managers/ADManager.py").
type Item struct {
	// Type is the content category the item belongs to.
	Type Type

	// Identifier names the item uniquely within its type.
	Identifier string

	// Payload holds the serialized entity. Opaque to the core.
	Payload []byte

	// DependsOn lists identifiers of items this one references. The core
	// exports items whose dependencies are absent anyway; referential
	// integrity is the platform's concern, not the exporter's.
	DependsOn []string

	// SensitiveFields names payload fields flagged as credential-bearing by
	// the producing collaborator. Consumed by the redactor.
	SensitiveFields []string
}

// Snapshot is the full set of items produced for one sync run. Items are
// never mutated by the core.
type Snapshot []Item
