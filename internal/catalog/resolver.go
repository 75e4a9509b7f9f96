// -----------------------------------------------------------------------
// Catalog resolver - loads the data manifest and serves read-only
// catalog descriptors with verified, contained file paths
// -----------------------------------------------------------------------

package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/models"
)

// manifest is the on-disk shape of the catalog manifest
type manifest struct {
	Version  string                     `json:"version" yaml:"version"`
	NodeName string                     `json:"node_name" yaml:"node_name"`
	Catalogs []*models.CatalogDescriptor `json:"catalogs" yaml:"catalogs"`
}

// Resolver serves catalog descriptors from the node's data manifest.
// The manifest is loaded once and can be reloaded on demand; reads are
// lock-protected so reload is safe while jobs are being admitted.
type Resolver struct {
	dataRoot     string
	manifestPath string

	mu       sync.RWMutex
	byID     map[string]*models.CatalogDescriptor
	byName   map[string]*models.CatalogDescriptor
	ordered  []*models.CatalogDescriptor
	nodeName string
}

// NewResolver loads the manifest at manifestPath and verifies every file
// entry against dataRoot. Missing files are flagged, not fatal.
func NewResolver(dataRoot, manifestPath string) (*Resolver, error) {
	r := &Resolver{
		dataRoot:     dataRoot,
		manifestPath: manifestPath,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the manifest from disk, replacing the catalog set
func (r *Resolver) Reload() error {
	logger := common.GetLogger()

	raw, err := os.ReadFile(r.manifestPath)
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", r.manifestPath, err)
	}

	var m manifest
	switch strings.ToLower(filepath.Ext(r.manifestPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("failed to parse manifest %s: %w", r.manifestPath, err)
		}
	default:
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("failed to parse manifest %s: %w", r.manifestPath, err)
		}
	}

	byID := make(map[string]*models.CatalogDescriptor, len(m.Catalogs))
	byName := make(map[string]*models.CatalogDescriptor, len(m.Catalogs))
	ordered := make([]*models.CatalogDescriptor, 0, len(m.Catalogs))

	for _, cat := range m.Catalogs {
		if cat.ID == "" {
			return fmt.Errorf("manifest catalog %q has no id", cat.Name)
		}
		if _, dup := byID[cat.ID]; dup {
			return fmt.Errorf("manifest has duplicate catalog id %q", cat.ID)
		}
		if err := r.prepareCatalog(cat); err != nil {
			return fmt.Errorf("catalog %s: %w", cat.ID, err)
		}
		byID[cat.ID] = cat
		if cat.Name != "" {
			byName[cat.Name] = cat
		}
		ordered = append(ordered, cat)
	}

	r.mu.Lock()
	r.byID = byID
	r.byName = byName
	r.ordered = ordered
	r.nodeName = m.NodeName
	r.mu.Unlock()

	logger.Info().
		Str("manifest", r.manifestPath).
		Int("catalogs", len(ordered)).
		Msg("Data manifest loaded")
	return nil
}

// prepareCatalog resolves file paths, checks containment and existence,
// and fills in missing column specs and record counts for tabular files
func (r *Resolver) prepareCatalog(cat *models.CatalogDescriptor) error {
	logger := common.GetLogger()

	for i := range cat.Files {
		f := &cat.Files[i]
		abs, err := r.containedPath(f.Path)
		if err != nil {
			return fmt.Errorf("file %s: %w", f.LogicalName, err)
		}
		f.Path = abs

		info, err := os.Stat(abs)
		f.Exists = err == nil && !info.IsDir()
		if !f.Exists {
			logger.Warn().
				Str("catalog", cat.ID).
				Str("file", f.LogicalName).
				Str("path", abs).
				Msg("Manifest file missing on disk")
			continue
		}

		if f.IsTabular() && (len(f.Columns) == 0 || f.RecordCount == nil) {
			cols, count, err := InspectTabular(abs, delimiterFor(f.Type))
			if err != nil {
				logger.Warn().
					Str("catalog", cat.ID).
					Str("file", f.LogicalName).
					Err(err).
					Msg("Failed to inspect tabular file")
				continue
			}
			if len(f.Columns) == 0 {
				f.Columns = cols
			}
			if f.RecordCount == nil {
				f.RecordCount = &count
			}
		}
	}
	return nil
}

// containedPath joins a manifest-relative path onto the data root and
// rejects any path that escapes it
func (r *Resolver) containedPath(p string) (string, error) {
	abs := p
	if !filepath.IsAbs(p) {
		abs = filepath.Join(r.dataRoot, p)
	}
	abs = filepath.Clean(abs)

	root := filepath.Clean(r.dataRoot)
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes data root", p)
	}
	return abs, nil
}

// Get returns a catalog by ID, common.ErrNotFound when absent
func (r *Resolver) Get(catalogID string) (*models.CatalogDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cat, ok := r.byID[catalogID]; ok {
		return cat, nil
	}
	return nil, fmt.Errorf("catalog %s: %w", catalogID, common.ErrNotFound)
}

// GetByIDOrName resolves a catalog by ID first, then by display name
func (r *Resolver) GetByIDOrName(ref string) (*models.CatalogDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cat, ok := r.byID[ref]; ok {
		return cat, nil
	}
	if cat, ok := r.byName[ref]; ok {
		return cat, nil
	}
	return nil, fmt.Errorf("catalog %s: %w", ref, common.ErrNotFound)
}

// List returns all catalogs in manifest order
func (r *Resolver) List() []*models.CatalogDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.CatalogDescriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// NodeName returns the node name declared in the manifest, if any
func (r *Resolver) NodeName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodeName
}

// DataRoot returns the root directory all catalog files live under
func (r *Resolver) DataRoot() string {
	return r.dataRoot
}

func delimiterFor(fileType string) rune {
	if fileType == "tsv" {
		return '\t'
	}
	return ','
}
