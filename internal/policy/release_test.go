package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/custodia/internal/common"
)

func testGate() *Gate {
	cfg := common.NewDefaultConfig()
	return NewGate(&cfg.Policy)
}

func TestReleaseBlocksSmallCohort(t *testing.T) {
	g := testGate()

	decision := g.Release(map[string]interface{}{"sample_size": 3.0, "age_mean": 52.1}, 3, 10)

	require.False(t, decision.Released)
	assert.Contains(t, decision.Reason, "cohort size (3)")
	assert.Contains(t, decision.Reason, "minimum (10)")
	assert.Nil(t, decision.Result)
}

func TestReleaseBlocksUnknownCohort(t *testing.T) {
	g := testGate()

	decision := g.Release(map[string]interface{}{"age_mean": 52.1}, -1, 5)

	require.False(t, decision.Released)
	assert.Contains(t, decision.Reason, "cohort size could not be determined")
}

func TestReleasePassesSufficientCohort(t *testing.T) {
	g := testGate()

	decision := g.Release(map[string]interface{}{"sample_size": 150.0, "age_mean": 45.2}, 150, 5)

	require.True(t, decision.Released)
	assert.Equal(t, 45.2, decision.Result["age_mean"])
	assert.Equal(t, 150.0, decision.Result["sample_size"])
}

func TestReleaseRoundsFloats(t *testing.T) {
	g := testGate()

	decision := g.Release(map[string]interface{}{"mean": 1.23456789}, 100, 5)

	require.True(t, decision.Released)
	assert.Equal(t, 1.235, decision.Result["mean"])
}

func TestReleaseKeepsIntegerValuedFloats(t *testing.T) {
	g := testGate()

	decision := g.Release(map[string]interface{}{"count": 42.0}, 100, 5)

	require.True(t, decision.Released)
	assert.Equal(t, 42.0, decision.Result["count"])
}

func TestReleaseCollapsesLongLists(t *testing.T) {
	g := testGate()

	rows := make([]interface{}, 30)
	for i := range rows {
		rows[i] = map[string]interface{}{"value": float64(i)}
	}
	decision := g.Release(map[string]interface{}{"rows": rows}, 100, 5)

	require.True(t, decision.Released)
	assert.Equal(t, "<list of 30 items>", decision.Result["rows"])
}

func TestReleaseKeepsAggregateSummaryLists(t *testing.T) {
	g := testGate()

	decision := g.Release(map[string]interface{}{
		"quartiles": []interface{}{10.0, 20.0, 30.0, 40.0},
	}, 100, 5)

	require.True(t, decision.Released)
	assert.Len(t, decision.Result["quartiles"], 4)
}

func TestReleaseBlocksIdentifierKeys(t *testing.T) {
	g := testGate()

	for _, key := range []string{"patient_id", "subject_id", "ssn", "email", "dob", "address"} {
		decision := g.Release(map[string]interface{}{
			"summary": map[string]interface{}{key: "x"},
			"n":       100.0,
		}, 100, 5)
		require.False(t, decision.Released, "key %s should block", key)
		assert.Contains(t, decision.Reason, key)
	}
}

func TestReleaseBlocksNestedIdentifier(t *testing.T) {
	g := testGate()

	decision := g.Release(map[string]interface{}{
		"groups": []interface{}{
			map[string]interface{}{"patient_name": "Jane"},
		},
	}, 100, 5)

	require.False(t, decision.Released)
}

func TestReleaseBlocksPhoneLikeStrings(t *testing.T) {
	g := testGate()

	decision := g.Release(map[string]interface{}{
		"contact": "555-867-5309",
	}, 100, 5)

	require.False(t, decision.Released)
}

func TestReleaseNoisePerturbsFloats(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Policy.EnableNoise = true
	cfg.Policy.NoiseEpsilon = 0.5
	cfg.Policy.ResultPrecision = 6
	g := NewGate(&cfg.Policy)

	perturbed := false
	for i := 0; i < 20; i++ {
		decision := g.Release(map[string]interface{}{"mean": 45.123456}, 100, 5)
		require.True(t, decision.Released)
		if decision.Result["mean"] != 45.123456 {
			perturbed = true
			break
		}
	}
	assert.True(t, perturbed, "expected Laplace noise to move the value at least once")
}
