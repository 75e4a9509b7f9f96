package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/models"
)

func testValidator() *Validator {
	cfg := common.NewDefaultConfig()
	return NewValidator(&cfg.Policy)
}

func TestValidateCleanPythonScript(t *testing.T) {
	v := testValidator()
	script := "from data_loader import load_data, save_results\n" +
		"d = load_data()\n" +
		"s = d['subjects']\n" +
		"save_results({'sample_size': len(s), 'age_mean': float(s['age'].mean())})\n"

	result := v.Validate(models.ScriptKindPython, script)

	assert.True(t, result.Safe)
	assert.Equal(t, RiskLow, result.Risk)
	assert.Empty(t, result.BlockedPatterns)
	assert.Empty(t, result.Warnings)
}

func TestValidateRejectsHighDangerPython(t *testing.T) {
	v := testValidator()

	for _, script := range []string{
		"import subprocess\nsubprocess.run(['ls'])",
		"exec('print(1)')",
		"eval('1+1')",
		"import os\nos.system('rm -rf /')",
		"__import__('socket')",
	} {
		result := v.Validate(models.ScriptKindPython, script)
		assert.False(t, result.Safe, "expected unsafe: %s", script)
		assert.Equal(t, RiskHigh, result.Risk)
		assert.NotEmpty(t, result.BlockedPatterns)
	}
}

func TestValidateRejectsHighDangerR(t *testing.T) {
	v := testValidator()

	result := v.Validate(models.ScriptKindR, "system('whoami')")
	assert.False(t, result.Safe)
	assert.Equal(t, RiskHigh, result.Risk)
}

func TestValidateRejectsSQLMutation(t *testing.T) {
	v := testValidator()

	result := v.Validate(models.ScriptKindSQL, "DROP TABLE subjects;")
	assert.False(t, result.Safe)
	assert.Contains(t, result.BlockedPatterns, "drop table")
}

func TestValidateWarningPatternRaisesRisk(t *testing.T) {
	v := testValidator()

	result := v.Validate(models.ScriptKindPython, "import urllib\nurllib.request")
	assert.True(t, result.Safe)
	assert.Equal(t, RiskMedium, result.Risk)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateOversizedScriptRaisesRisk(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Policy.MaxScriptLines = 10
	v := NewValidator(&cfg.Policy)

	script := strings.Repeat("x = 1\n", 50)
	result := v.Validate(models.ScriptKindPython, script)

	assert.True(t, result.Safe)
	assert.Equal(t, RiskMedium, result.Risk)
}

func TestValidateJupyterSharesPythonPatterns(t *testing.T) {
	v := testValidator()

	result := v.Validate(models.ScriptKindJupyter, `{"cells":[{"source":"exec('x')"}]}`)
	assert.False(t, result.Safe)
}
