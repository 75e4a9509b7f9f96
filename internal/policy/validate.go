package policy

import (
	"fmt"
	"strings"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/models"
)

// RiskLevel grades a validated script
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ValidationResult is the outcome of static script validation
type ValidationResult struct {
	Safe            bool      `json:"safe"`
	Risk            RiskLevel `json:"risk"`
	Warnings        []string  `json:"warnings,omitempty"`
	BlockedPatterns []string  `json:"blocked_patterns,omitempty"`
}

// Validator applies the static policy to submitted scripts
type Validator struct {
	maxScriptBytes int
	maxScriptLines int
}

// NewValidator builds a validator with the node's size thresholds
func NewValidator(cfg *common.PolicyConfig) *Validator {
	return &Validator{
		maxScriptBytes: cfg.MaxScriptBytes,
		maxScriptLines: cfg.MaxScriptLines,
	}
}

// Validate scans a script against the blocked pattern sets for its kind.
// High-danger matches mark the script unsafe; warning matches and oversized
// scripts raise the risk level but do not reject on their own.
func (v *Validator) Validate(kind models.ScriptKind, script string) *ValidationResult {
	result := &ValidationResult{Safe: true, Risk: RiskLow}
	lowered := strings.ToLower(script)

	highDanger, blocked := patternsFor(kind)
	for _, p := range highDanger {
		if strings.Contains(lowered, p) {
			result.Safe = false
			result.Risk = RiskHigh
			result.BlockedPatterns = append(result.BlockedPatterns, p)
		}
	}
	for _, p := range blocked {
		if strings.Contains(lowered, p) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("script uses restricted pattern %q", p))
			if result.Risk == RiskLow {
				result.Risk = RiskMedium
			}
		}
	}

	if v.maxScriptBytes > 0 && len(script) > v.maxScriptBytes {
		result.Warnings = append(result.Warnings, fmt.Sprintf("script size %d bytes exceeds threshold %d", len(script), v.maxScriptBytes))
		if result.Risk == RiskLow {
			result.Risk = RiskMedium
		}
	}
	if v.maxScriptLines > 0 {
		if lines := strings.Count(script, "\n") + 1; lines > v.maxScriptLines {
			result.Warnings = append(result.Warnings, fmt.Sprintf("script length %d lines exceeds threshold %d", lines, v.maxScriptLines))
			if result.Risk == RiskLow {
				result.Risk = RiskMedium
			}
		}
	}

	return result
}
