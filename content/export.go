package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Repository layout roots. Singleton types collapse into a fixed file under
// Settings/; entity types get a directory keyed by identifier.
const (
	integrationsRoot   = "Integrations"
	playbooksRoot      = "Playbooks"
	jobsRoot           = "Jobs"
	connectorsRoot     = "Connectors"
	simulatedCasesRoot = "SimulatedCases"
	mappingsRoot       = "Ontology/Mappings"
	visualFamiliesRoot = "Ontology/VisualFamilies"
	settingsRoot       = "Settings"

	// MetadataFile sits at the repository root and records which system
	// produced the export.
	MetadataFile = "GitSync.json"

	// RootReadmeFile is the top-level README regenerated on every export.
	RootReadmeFile = "README.md"
)

// settingsFiles maps each singleton content type to its file under Settings/.
var settingsFiles = map[Type]string{
	TypeIntegrationInstances: "integrationInstances.json",
	TypeEnvironments:         "environments.json",
	TypeDynamicParameters:    "dynamicParameters.json",
	TypeLogo:                 "logo.json",
	TypeCaseTags:             "tags.json",
	TypeCaseStages:           "stages.json",
	TypeCaseTitleSettings:    "caseTitles.json",
	TypeCaseCloseReasons:     "caseCloseCauses.json",
	TypeNetworks:             "networks.json",
	TypeDomains:              "domains.json",
	TypeCustomLists:          "customLists.json",
	TypeEmailTemplates:       "emailTemplates.json",
	TypeBlacklists:           "blacklists.json",
	TypeSLARecords:           "slaDefinitions.json",
}

// entityRoots maps each entity content type to its directory root.
var entityRoots = map[Type]string{
	TypeIntegrations:   integrationsRoot,
	TypePlaybooks:      playbooksRoot,
	TypeJobs:           jobsRoot,
	TypeConnectors:     connectorsRoot,
	TypeSimulatedCases: simulatedCasesRoot,
	TypeMappings:       mappingsRoot,
	TypeVisualFamilies: visualFamiliesRoot,
}

// ErrBadItem is returned when an item cannot be mapped to a repository path
// (empty or escaping identifier, unknown type). It marks the run's export as
// failed without touching any persisted state.
var ErrBadItem = errors.New("item cannot be exported")

// Metadata is the repository-level descriptor written to GitSync.json.
type Metadata struct {
	SystemVersion string            `json:"systemVersion"`
	Settings      map[string]bool   `json:"settings"`
	ReadmeAddons  map[string]string `json:"readmeAddons,omitempty"`
}

// defaultMetadata mirrors the descriptor written on first bootstrap.
func defaultMetadata(systemVersion string) Metadata {
	return Metadata{
		SystemVersion: systemVersion,
		Settings:      map[string]bool{"update_root_readme": true},
	}
}

// Exporter turns a Snapshot into a FileTree with a deterministic layout.
// Re-exporting an unchanged snapshot yields byte-identical output, which is
// what lets the commit builder detect no-op runs by tree hash alone.
type Exporter struct {
	// SystemVersion is recorded in the repository metadata file.
	SystemVersion string

	// RootReadme overrides the generated top-level README when non-empty.
	RootReadme string
}

// Export filters the snapshot down to the selected types and lays each
// surviving item out under its type's root. Items referencing dependencies
// that are absent from the snapshot are exported anyway; the core validates
// structure, not application-level referential integrity.
func (e *Exporter) Export(snapshot Snapshot, selected TypeSet) (*FileTree, error) {
	tree := NewFileTree()

	for _, item := range snapshot {
		if !selected.Contains(item.Type) {
			continue
		}
		p, err := itemPath(item)
		if err != nil {
			return nil, err
		}
		tree.Put(p, append([]byte(nil), item.Payload...))
	}

	meta, err := json.MarshalIndent(defaultMetadata(e.SystemVersion), "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encoding repository metadata: %w", err)
	}
	tree.Put(MetadataFile, append(meta, '\n'))
	tree.Put(RootReadmeFile, []byte(e.rootReadme()))

	return tree, nil
}

func (e *Exporter) rootReadme() string {
	if e.RootReadme != "" {
		return e.RootReadme
	}
	return "# GitSync\nThis repository is managed by the GitSync content synchronization job.\n"
}

// itemPath derives the repository path for an item from (type, identifier).
// The derivation is pure so identical items always land on identical paths.
func itemPath(item Item) (string, error) {
	if file, ok := settingsFiles[item.Type]; ok {
		// Singleton types ignore the identifier: one file per type.
		return settingsRoot + "/" + file, nil
	}

	rel, err := sanitizeIdentifier(item.Identifier)
	if err != nil {
		return "", fmt.Errorf("%w: %s %q: %v", ErrBadItem, item.Type, item.Identifier, err)
	}

	root, ok := entityRoots[item.Type]
	if !ok {
		return "", fmt.Errorf("%w: unknown content type %q", ErrBadItem, item.Type)
	}

	if path.Ext(rel) == "" {
		rel += ".json"
	}
	return root + "/" + rel, nil
}

// TypeForPath reports which content type owns a repository path. Repository
// level files (README, metadata) belong to no type.
func TypeForPath(p string) (Type, bool) {
	for typ, file := range settingsFiles {
		if p == settingsRoot+"/"+file {
			return typ, true
		}
	}
	// Longest root first so Ontology/* does not match a shorter prefix.
	best := Type("")
	bestLen := -1
	for typ, root := range entityRoots {
		if strings.HasPrefix(p, root+"/") && len(root) > bestLen {
			best, bestLen = typ, len(root)
		}
	}
	if bestLen >= 0 {
		return best, true
	}
	return "", false
}

// sanitizeIdentifier normalizes an identifier into a safe relative path.
// Identifiers may contain slashes for multi-file entities but must not be
// empty, absolute, or escape the type's root.
func sanitizeIdentifier(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("empty identifier")
	}
	if strings.HasPrefix(id, "/") {
		return "", errors.New("absolute identifier")
	}
	cleaned := path.Clean(id)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("identifier escapes content root")
	}
	return cleaned, nil
}
