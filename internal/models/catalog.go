package models

// ColumnKind is the inferred (or declared) type of a tabular column
type ColumnKind string

const (
	ColumnKindInt      ColumnKind = "int"
	ColumnKindFloat    ColumnKind = "float"
	ColumnKindBool     ColumnKind = "bool"
	ColumnKindDatetime ColumnKind = "datetime"
	ColumnKindString   ColumnKind = "string"
)

// ColumnSpec describes one column of a tabular data file
type ColumnSpec struct {
	Name string     `json:"name" yaml:"name"`
	Type ColumnKind `json:"type" yaml:"type"`
}

// FileDescriptor describes one data file inside a catalog.
// Path is manifest-relative unless absolute; LogicalName is the key user
// scripts use to address the file through the data loader.
type FileDescriptor struct {
	LogicalName string       `json:"name" yaml:"name"`
	Path        string       `json:"path" yaml:"path"`
	Type        string       `json:"type" yaml:"type"` // csv, tsv, json, nii, nii.gz, ...
	Columns     []ColumnSpec `json:"columns,omitempty" yaml:"columns,omitempty"`
	RecordCount *int         `json:"record_count,omitempty" yaml:"record_count,omitempty"`
	Exists      bool         `json:"exists" yaml:"-"`
}

// IsTabular reports whether the file type supports column inference
func (f *FileDescriptor) IsTabular() bool {
	return f.Type == "csv" || f.Type == "tsv"
}

// CatalogDescriptor is a read-only view of one catalog resolved from the
// manifest. IDs are stable strings and serve as the foreign key on Job rows.
type CatalogDescriptor struct {
	ID            string                 `json:"id" yaml:"id"`
	Name          string                 `json:"name" yaml:"name"`
	Description   string                 `json:"description" yaml:"description"`
	DataType      string                 `json:"data_type" yaml:"data_type"`         // tabular, imaging, mixed, ...
	PrivacyLevel  string                 `json:"privacy_level" yaml:"privacy_level"` // public, restricted, private
	MinCohortSize *int                   `json:"min_cohort_size,omitempty" yaml:"min_cohort_size,omitempty"`
	Files         []FileDescriptor       `json:"files" yaml:"files"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EffectiveMinCohortSize returns the catalog override when declared,
// otherwise the node-wide default. This is the only policy override point.
func (c *CatalogDescriptor) EffectiveMinCohortSize(nodeDefault int) int {
	if c != nil && c.MinCohortSize != nil {
		return *c.MinCohortSize
	}
	return nodeDefault
}

// FirstTabularRecordCount returns the row count of the first tabular file,
// or -1 when no tabular file carries a count. Used as the fallback cohort
// size when a result has no sample_size.
func (c *CatalogDescriptor) FirstTabularRecordCount() int {
	for _, f := range c.Files {
		if f.IsTabular() && f.RecordCount != nil {
			return *f.RecordCount
		}
	}
	return -1
}
