package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExportSelectiveTypes tests that only selected types survive the export
func TestExportSelectiveTypes(t *testing.T) {
	snapshot := Snapshot{
		{Type: TypePlaybooks, Identifier: "Phishing Triage", Payload: []byte(`{"name":"Phishing Triage"}`)},
		{Type: TypeJobs, Identifier: "Case Sync", Payload: []byte(`{"name":"Case Sync"}`)},
	}

	exporter := &Exporter{SystemVersion: "6.3.1"}
	tree, err := exporter.Export(snapshot, NewTypeSet(TypeJobs))
	require.NoError(t, err)

	// Only the Jobs item plus the two repository-level files.
	require.Equal(t, 3, tree.Len())

	_, ok := tree.Get("Jobs/Case Sync.json")
	assert.True(t, ok, "selected job should be exported")

	_, ok = tree.Get("Playbooks/Phishing Triage.json")
	assert.False(t, ok, "unselected playbook must not be exported")

	_, ok = tree.Get(MetadataFile)
	assert.True(t, ok, "metadata file should always be present")
	_, ok = tree.Get(RootReadmeFile)
	assert.True(t, ok, "root README should always be present")
}

// TestExportDeterministic tests byte-identical output for unchanged snapshots
func TestExportDeterministic(t *testing.T) {
	snapshot := Snapshot{
		{Type: TypeConnectors, Identifier: "Darktrace Connector", Payload: []byte(`{"displayName":"Darktrace Connector"}`)},
		{Type: TypeEnvironments, Identifier: "environments", Payload: []byte(`[{"name":"Default"}]`)},
	}
	selected := NewTypeSet(TypeConnectors, TypeEnvironments)

	exporter := &Exporter{SystemVersion: "6.3.1"}
	first, err := exporter.Export(snapshot, selected)
	require.NoError(t, err)
	second, err := exporter.Export(snapshot, selected)
	require.NoError(t, err)

	assert.True(t, first.Equal(second), "re-exporting an unchanged snapshot must be byte-identical")
}

// TestExportLayout tests path derivation per content type
func TestExportLayout(t *testing.T) {
	tests := []struct {
		name     string
		item     Item
		wantPath string
	}{
		{
			name:     "entity type gets json extension",
			item:     Item{Type: TypePlaybooks, Identifier: "Enrich IOC", Payload: []byte("{}")},
			wantPath: "Playbooks/Enrich IOC.json",
		},
		{
			name:     "multi-file entity keeps relative path and extension",
			item:     Item{Type: TypeIntegrations, Identifier: "ActiveDirectory/Managers/ADManager.py", Payload: []byte("pass")},
			wantPath: "Integrations/ActiveDirectory/Managers/ADManager.py",
		},
		{
			name:     "mapping lands under the ontology root",
			item:     Item{Type: TypeMappings, Identifier: "CrowdStrike/CrowdStrike_Rules", Payload: []byte("[]")},
			wantPath: "Ontology/Mappings/CrowdStrike/CrowdStrike_Rules.json",
		},
		{
			name:     "singleton type collapses to its settings file",
			item:     Item{Type: TypeCaseTags, Identifier: "whatever", Payload: []byte("[]")},
			wantPath: "Settings/tags.json",
		},
		{
			name:     "sla records singleton",
			item:     Item{Type: TypeSLARecords, Identifier: "sla", Payload: []byte("[]")},
			wantPath: "Settings/slaDefinitions.json",
		},
		{
			name:     "singleton type needs no identifier",
			item:     Item{Type: TypeCaseTags, Payload: []byte("[]")},
			wantPath: "Settings/tags.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := itemPath(tt.item)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, got)
		})
	}
}

// TestExportRejectsBadIdentifiers tests structural validation of identifiers
func TestExportRejectsBadIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		item Item
	}{
		{name: "empty identifier", item: Item{Type: TypeJobs, Identifier: "   "}},
		{name: "absolute identifier", item: Item{Type: TypeJobs, Identifier: "/etc/passwd"}},
		{name: "escaping identifier", item: Item{Type: TypeJobs, Identifier: "../../secrets"}},
		{name: "unknown type", item: Item{Type: Type("Widgets"), Identifier: "w"}},
	}

	exporter := &Exporter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected := NewTypeSet(tt.item.Type)
			_, err := exporter.Export(Snapshot{tt.item}, selected)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBadItem)
		})
	}
}

// TestExportIgnoresDanglingDependencies tests that referential integrity is not enforced
func TestExportIgnoresDanglingDependencies(t *testing.T) {
	snapshot := Snapshot{
		{
			Type:       TypePlaybooks,
			Identifier: "Block Host",
			Payload:    []byte("{}"),
			DependsOn:  []string{"Missing Block"},
		},
	}

	exporter := &Exporter{}
	tree, err := exporter.Export(snapshot, NewTypeSet(TypePlaybooks))
	require.NoError(t, err)

	_, ok := tree.Get("Playbooks/Block Host.json")
	assert.True(t, ok, "items with dangling dependencies are exported anyway")
}

// TestAllTypesValid sanity-checks the type enumeration
func TestAllTypesValid(t *testing.T) {
	for _, typ := range AllTypes() {
		assert.True(t, typ.IsValid(), "type %q should be valid", typ)
	}
	assert.False(t, Type("nope").IsValid())

	// Every type must resolve to either a settings file or an entity root.
	for _, typ := range AllTypes() {
		_, singleton := settingsFiles[typ]
		_, entity := entityRoots[typ]
		assert.True(t, singleton || entity, "type %q has no layout mapping", typ)
	}
}

// TestFileTreeEqual tests tree equality semantics
func TestFileTreeEqual(t *testing.T) {
	a := NewFileTree()
	a.Put("x.json", []byte("1"))
	b := NewFileTree()
	b.Put("x.json", []byte("1"))

	assert.True(t, a.Equal(b))

	b.Put("y.json", []byte("2"))
	assert.False(t, a.Equal(b), "extra path breaks equality")

	b.Delete("y.json")
	b.Put("x.json", []byte("changed"))
	assert.False(t, a.Equal(b), "changed content breaks equality")

	assert.False(t, a.Equal(nil))
}

// TestFileTreeClone tests that clones do not share backing storage
func TestFileTreeClone(t *testing.T) {
	orig := NewFileTree()
	orig.Put("a.json", []byte("secret"))

	clone := orig.Clone()
	data, ok := clone.Get("a.json")
	require.True(t, ok)
	data[0] = 'X'

	origData, _ := orig.Get("a.json")
	assert.Equal(t, []byte("secret"), origData, "mutating a clone must not touch the original")
}
