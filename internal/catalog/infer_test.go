package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/custodia/internal/models"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInspectTabularInfersTypes(t *testing.T) {
	path := writeTempCSV(t, "subject,age,score,enrolled,visit_date,notes\n"+
		"1,34,0.82,true,2024-01-15,first visit\n"+
		"2,41,0.91,false,2024-02-20,follow up\n"+
		"3,29,0.77,true,2024-03-05,baseline\n")

	columns, count, err := InspectTabular(path, ',')
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	byName := map[string]models.ColumnKind{}
	for _, c := range columns {
		byName[c.Name] = c.Type
	}
	assert.Equal(t, models.ColumnKindInt, byName["subject"])
	assert.Equal(t, models.ColumnKindInt, byName["age"])
	assert.Equal(t, models.ColumnKindFloat, byName["score"])
	assert.Equal(t, models.ColumnKindBool, byName["enrolled"])
	assert.Equal(t, models.ColumnKindDatetime, byName["visit_date"])
	assert.Equal(t, models.ColumnKindString, byName["notes"])
}

func TestInspectTabularIntWinsOverFloat(t *testing.T) {
	path := writeTempCSV(t, "n\n1\n2\n3\n")

	columns, _, err := InspectTabular(path, ',')
	require.NoError(t, err)
	assert.Equal(t, models.ColumnKindInt, columns[0].Type)
}

func TestInspectTabularEmptyValuesIgnored(t *testing.T) {
	path := writeTempCSV(t, "x\n\n1.5\n\n2.5\n")

	columns, count, err := InspectTabular(path, ',')
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, models.ColumnKindFloat, columns[0].Type)
}

func TestInspectTabularTSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.tsv")
	require.NoError(t, os.WriteFile(path, []byte("a\tb\n1\tx\n2\ty\n"), 0o644))

	columns, count, err := InspectTabular(path, '\t')
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, columns, 2)
	assert.Equal(t, models.ColumnKindInt, columns[0].Type)
	assert.Equal(t, models.ColumnKindString, columns[1].Type)
}
