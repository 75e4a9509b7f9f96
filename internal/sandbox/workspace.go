// -----------------------------------------------------------------------
// Workspace builder - materializes a per-job directory containing the
// script, the data-loader shim, job_config.json and the output placeholder
// -----------------------------------------------------------------------

package sandbox

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
)

//go:embed assets/data_loader.py assets/data_loader.R
var shimFS embed.FS

// jobConfigFile is the workspace-embedded configuration the shim reads.
// Catalog file paths are rewritten relative to the data root so the shim
// resolves them through DATA_ROOT and never leaves the mounts it is given.
type jobConfigFile struct {
	JobID         string                 `json:"job_id"`
	Catalog       *configCatalog         `json:"catalog"`
	UploadedFiles []configUpload         `json:"uploaded_files"`
	Parameters    map[string]interface{} `json:"parameters,omitempty"`
	Filters       map[string]interface{} `json:"filters,omitempty"`
}

type configCatalog struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	DataType      string       `json:"data_type"`
	PrivacyLevel  string       `json:"privacy_level"`
	MinCohortSize int          `json:"min_cohort_size"`
	Files         []configFile `json:"files"`
}

type configFile struct {
	Name string `json:"name"`
	Path string `json:"path"` // Relative to DATA_ROOT
	Type string `json:"type"`
}

type configUpload struct {
	Name string `json:"name"`
	Path string `json:"path"` // Relative to the workspace directory
	Type string `json:"type"`
}

// WorkspaceBuilder creates and tears down per-job workspaces
type WorkspaceBuilder struct {
	workDir  string
	dataRoot string
}

// NewWorkspaceBuilder ensures the work directory exists
func NewWorkspaceBuilder(workDir, dataRoot string) (*WorkspaceBuilder, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory %s: %w", workDir, err)
	}
	return &WorkspaceBuilder{workDir: workDir, dataRoot: dataRoot}, nil
}

// Build materializes the workspace for one job. uploads are the metadata
// rows for files referenced by the job; their stored blobs are copied into
// the workspace so the sandbox never needs access to the uploads area.
func (b *WorkspaceBuilder) Build(job *models.Job, cat *models.CatalogDescriptor, uploads []*models.UploadedFile, minCohort int) (*interfaces.PreparedWorkspace, error) {
	logger := common.GetLogger()

	dir := filepath.Join(b.workDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}

	scriptPath := filepath.Join(dir, "script."+job.ScriptKind.Extension())
	if err := os.WriteFile(scriptPath, []byte(job.ScriptContent), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write script: %w", err)
	}

	for _, shim := range []string{"data_loader.py", "data_loader.R"} {
		content, err := shimFS.ReadFile("assets/" + shim)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded shim %s: %w", shim, err)
		}
		if err := os.WriteFile(filepath.Join(dir, shim), content, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write shim %s: %w", shim, err)
		}
	}

	cfg := &jobConfigFile{
		JobID:         job.ID,
		Catalog:       b.catalogConfig(cat, minCohort),
		UploadedFiles: []configUpload{},
		Parameters:    job.Parameters,
		Filters:       job.Filters,
	}

	for _, up := range uploads {
		dest := filepath.Join("uploads", up.OriginalName)
		if err := copyFile(up.StoredPath, filepath.Join(dir, dest)); err != nil {
			return nil, fmt.Errorf("failed to copy uploaded file %s: %w", up.ID, err)
		}
		cfg.UploadedFiles = append(cfg.UploadedFiles, configUpload{
			Name: up.OriginalName,
			Path: dest,
			Type: up.Kind,
		})
	}

	configPath := filepath.Join(dir, "job_config.json")
	configBytes, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job config: %w", err)
	}
	if err := os.WriteFile(configPath, configBytes, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write job config: %w", err)
	}

	outputPath := filepath.Join(dir, "output.json")
	if err := os.WriteFile(outputPath, []byte("{}"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write output placeholder: %w", err)
	}

	ws := &interfaces.PreparedWorkspace{
		Dir:        dir,
		ScriptPath: scriptPath,
		OutputPath: outputPath,
		Kind:       job.ScriptKind,
		Env: map[string]string{
			"DATA_ROOT":       b.dataRoot,
			"JOB_CONFIG":      configPath,
			"OUTPUT_FILE":     outputPath,
			"MIN_COHORT_SIZE": strconv.Itoa(minCohort),
		},
	}

	logger.Debug().
		Str("job_id", job.ID).
		Str("workspace", dir).
		Int("uploads", len(uploads)).
		Msg("Workspace prepared")
	return ws, nil
}

// catalogConfig projects the resolved catalog into the shape the shim
// expects, with file paths relative to the data root
func (b *WorkspaceBuilder) catalogConfig(cat *models.CatalogDescriptor, minCohort int) *configCatalog {
	out := &configCatalog{
		ID:            cat.ID,
		Name:          cat.Name,
		Description:   cat.Description,
		DataType:      cat.DataType,
		PrivacyLevel:  cat.PrivacyLevel,
		MinCohortSize: minCohort,
		Files:         make([]configFile, 0, len(cat.Files)),
	}
	for _, f := range cat.Files {
		if !f.Exists {
			continue
		}
		rel, err := filepath.Rel(b.dataRoot, f.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = f.Path
		}
		out.Files = append(out.Files, configFile{
			Name: f.LogicalName,
			Path: rel,
			Type: f.Type,
		})
	}
	return out
}

// Remove deletes a job workspace. Safe to call on retained or missing dirs.
func (b *WorkspaceBuilder) Remove(jobID string) error {
	dir := filepath.Join(b.workDir, jobID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", dir, err)
	}
	return nil
}

// WorkDir returns the root directory job workspaces live under
func (b *WorkspaceBuilder) WorkDir() string {
	return b.workDir
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
