package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/custodia/internal/common"
)

const subjectsCSV = "subject_id,age\n1,34\n2,41\n3,29\n"

func writeManifest(t *testing.T, dataRoot, name, content string) string {
	t.Helper()
	path := filepath.Join(dataRoot, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func setupDataRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "subjects.csv"), []byte(subjectsCSV), 0o644))
	return root
}

func TestResolverLoadsJSONManifest(t *testing.T) {
	root := setupDataRoot(t)
	manifest := writeManifest(t, root, "manifest.json", `{
		"version": "1.0",
		"node_name": "test-node",
		"catalogs": [{
			"id": "cat_demo",
			"name": "Demo Study",
			"description": "demo",
			"data_type": "tabular",
			"privacy_level": "restricted",
			"files": [{"name": "subjects", "path": "subjects.csv", "type": "csv"}]
		}]
	}`)

	r, err := NewResolver(root, manifest)
	require.NoError(t, err)
	assert.Equal(t, "test-node", r.NodeName())

	cat, err := r.Get("cat_demo")
	require.NoError(t, err)
	assert.Equal(t, "Demo Study", cat.Name)
	require.Len(t, cat.Files, 1)
	assert.True(t, cat.Files[0].Exists)
	require.NotNil(t, cat.Files[0].RecordCount)
	assert.Equal(t, 3, *cat.Files[0].RecordCount)
	assert.Len(t, cat.Files[0].Columns, 2)
	assert.Equal(t, 3, cat.FirstTabularRecordCount())
}

func TestResolverLoadsYAMLManifest(t *testing.T) {
	root := setupDataRoot(t)
	manifest := writeManifest(t, root, "manifest.yaml", `
version: "1.0"
catalogs:
  - id: cat_yaml
    name: Yaml Study
    data_type: tabular
    privacy_level: private
    min_cohort_size: 12
    files:
      - name: subjects
        path: subjects.csv
        type: csv
`)

	r, err := NewResolver(root, manifest)
	require.NoError(t, err)

	cat, err := r.Get("cat_yaml")
	require.NoError(t, err)
	require.NotNil(t, cat.MinCohortSize)
	assert.Equal(t, 12, cat.EffectiveMinCohortSize(5))
}

func TestResolverByIDOrName(t *testing.T) {
	root := setupDataRoot(t)
	manifest := writeManifest(t, root, "manifest.json",
		`{"catalogs":[{"id":"cat_a","name":"Study A","data_type":"tabular","privacy_level":"public","files":[]}]}`)

	r, err := NewResolver(root, manifest)
	require.NoError(t, err)

	byID, err := r.GetByIDOrName("cat_a")
	require.NoError(t, err)
	byName, err := r.GetByIDOrName("Study A")
	require.NoError(t, err)
	assert.Equal(t, byID, byName)

	_, err = r.GetByIDOrName("missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestResolverRejectsEscapingPaths(t *testing.T) {
	root := setupDataRoot(t)
	manifest := writeManifest(t, root, "manifest.json",
		`{"catalogs":[{"id":"cat_bad","name":"Bad","data_type":"tabular","privacy_level":"public","files":[{"name":"secret","path":"../etc/passwd","type":"csv"}]}]}`)

	_, err := NewResolver(root, manifest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes data root")
}

func TestResolverRejectsDuplicateIDs(t *testing.T) {
	root := setupDataRoot(t)
	manifest := writeManifest(t, root, "manifest.json",
		`{"catalogs":[
			{"id":"cat_x","name":"One","data_type":"tabular","privacy_level":"public","files":[]},
			{"id":"cat_x","name":"Two","data_type":"tabular","privacy_level":"public","files":[]}
		]}`)

	_, err := NewResolver(root, manifest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate catalog id")
}

func TestResolverMissingFileFlagged(t *testing.T) {
	root := setupDataRoot(t)
	manifest := writeManifest(t, root, "manifest.json",
		`{"catalogs":[{"id":"cat_m","name":"M","data_type":"tabular","privacy_level":"public","files":[{"name":"ghost","path":"ghost.csv","type":"csv"}]}]}`)

	r, err := NewResolver(root, manifest)
	require.NoError(t, err)

	cat, err := r.Get("cat_m")
	require.NoError(t, err)
	assert.False(t, cat.Files[0].Exists)
	assert.Equal(t, -1, cat.FirstTabularRecordCount())
}

func TestResolverReloadPicksUpChanges(t *testing.T) {
	root := setupDataRoot(t)
	manifest := writeManifest(t, root, "manifest.json",
		`{"catalogs":[{"id":"cat_1","name":"First","data_type":"tabular","privacy_level":"public","files":[]}]}`)

	r, err := NewResolver(root, manifest)
	require.NoError(t, err)
	assert.Len(t, r.List(), 1)

	writeManifest(t, root, "manifest.json",
		`{"catalogs":[
			{"id":"cat_1","name":"First","data_type":"tabular","privacy_level":"public","files":[]},
			{"id":"cat_2","name":"Second","data_type":"tabular","privacy_level":"public","files":[]}
		]}`)
	require.NoError(t, r.Reload())
	assert.Len(t, r.List(), 2)
}
