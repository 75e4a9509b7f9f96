package policy

import (
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strings"

	"github.com/ternarybob/custodia/internal/common"
)

// aggregateListBound - lists of scalars at or under this length are treated
// as aggregated summaries and pass through without collapsing
const aggregateListBound = 20

// identifierDenyList - result keys that indicate individual-level data.
// Matched as substrings of lowercased keys anywhere in the nested result.
var identifierDenyList = []string{
	"subject_id",
	"patient_id",
	"ssn",
	"email",
	"dob",
	"date_of_birth",
	"name",
	"address",
	"phone",
}

var phoneLikePattern = regexp.MustCompile(`\b(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)

// ReleaseDecision is the outcome of the release gate for one result
type ReleaseDecision struct {
	Released bool                   `json:"released"`
	Result   map[string]interface{} `json:"result,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
}

// Gate enforces the minimum-cohort policy on results before they leave
// the node. Stateless beyond configuration.
type Gate struct {
	precision    int
	enableNoise  bool
	noiseEpsilon float64
}

// NewGate builds the release gate from the node policy config
func NewGate(cfg *common.PolicyConfig) *Gate {
	return &Gate{
		precision:    cfg.ResultPrecision,
		enableNoise:  cfg.EnableNoise,
		noiseEpsilon: cfg.NoiseEpsilon,
	}
}

// Release gates a script result on cohort size and scans it for
// individual-level leakage. cohortN < 0 means the cohort size could not be
// determined, which blocks. On release the result is normalized: floats
// rounded, oversized lists collapsed, nested maps recursed.
func (g *Gate) Release(result map[string]interface{}, cohortN int, minCohort int) *ReleaseDecision {
	if cohortN < 0 {
		return &ReleaseDecision{
			Released: false,
			Reason:   "cohort size could not be determined: result has no sample_size and the catalog has no tabular record count",
		}
	}
	if cohortN < minCohort {
		return &ReleaseDecision{
			Released: false,
			Reason:   fmt.Sprintf("cohort size (%d) below minimum (%d): result withheld to protect individual privacy", cohortN, minCohort),
		}
	}

	if key := g.scanIdentifiers(result, ""); key != "" {
		return &ReleaseDecision{
			Released: false,
			Reason:   fmt.Sprintf("result contains identifier-like field %q: individual-level data may not leave the node", key),
		}
	}

	normalized := g.normalizeMap(result, minCohort)
	return &ReleaseDecision{Released: true, Result: normalized}
}

// scanIdentifiers walks the nested result and returns the first key that
// matches the deny list, or a path whose string value looks like a phone
// number. Empty string means clean.
func (g *Gate) scanIdentifiers(value interface{}, path string) string {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			lowered := strings.ToLower(key)
			for _, denied := range identifierDenyList {
				if strings.Contains(lowered, denied) {
					return joinPath(path, key)
				}
			}
			if hit := g.scanIdentifiers(child, joinPath(path, key)); hit != "" {
				return hit
			}
		}
	case []interface{}:
		for i, child := range v {
			if hit := g.scanIdentifiers(child, fmt.Sprintf("%s[%d]", path, i)); hit != "" {
				return hit
			}
		}
	case string:
		if phoneLikePattern.MatchString(v) {
			return path
		}
	}
	return ""
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func (g *Gate) normalizeMap(m map[string]interface{}, minCohort int) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for key, value := range m {
		out[key] = g.normalizeValue(value, minCohort)
	}
	return out
}

func (g *Gate) normalizeValue(value interface{}, minCohort int) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return g.normalizeMap(v, minCohort)
	case []interface{}:
		if len(v) > minCohort && !isAggregateList(v) {
			return fmt.Sprintf("<list of %d items>", len(v))
		}
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = g.normalizeValue(item, minCohort)
		}
		return out
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < 1e15 {
			// Integer-valued counts pass through unrounded
			return v
		}
		return g.roundFloat(g.maybeNoise(v))
	case float32:
		return g.normalizeValue(float64(v), minCohort)
	default:
		return v
	}
}

// isAggregateList reports whether a list looks like an aggregated summary
// rather than row-level data: all scalar, bounded length
func isAggregateList(list []interface{}) bool {
	if len(list) > aggregateListBound {
		return false
	}
	for _, item := range list {
		switch item.(type) {
		case map[string]interface{}, []interface{}:
			return false
		}
	}
	return true
}

func (g *Gate) roundFloat(v float64) float64 {
	scale := math.Pow10(g.precision)
	return math.Round(v*scale) / scale
}

// maybeNoise adds Laplace noise with scale 1/epsilon when enabled.
// Sampled by inverse CDF from a uniform on (-1/2, 1/2).
func (g *Gate) maybeNoise(v float64) float64 {
	if !g.enableNoise || g.noiseEpsilon <= 0 {
		return v
	}
	u := rand.Float64() - 0.5
	scale := 1.0 / g.noiseEpsilon
	noise := -scale * sign(u) * math.Log(1-2*math.Abs(u))
	return v + noise
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
