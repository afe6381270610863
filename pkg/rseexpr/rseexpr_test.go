package rseexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

func testUniverse() []types.RSE {
	return []types.RSE{
		{ID: "1", Name: "CERN-PROD_DATADISK", Attributes: map[string]any{"tier": "1", "country": "ch", "disk": true}},
		{ID: "2", Name: "CERN-PROD_TAPE", Attributes: map[string]any{"tier": "1", "country": "ch", "tape": true}},
		{ID: "3", Name: "BNL-OSG2_DATADISK", Attributes: map[string]any{"tier": "1", "country": "us", "disk": true}},
		{ID: "4", Name: "DESY-HH_SCRATCHDISK", Attributes: map[string]any{"tier": "2", "country": "de", "disk": true}},
	}
}

func names(rses []types.RSE) []string {
	out := make([]string, len(rses))
	for i, r := range rses {
		out[i] = r.Name
	}
	return out
}

func TestEvaluateBareAttribute(t *testing.T) {
	got, err := Evaluate("disk", testUniverse())
	require.NoError(t, err)
	assert.Equal(t, []string{"BNL-OSG2_DATADISK", "CERN-PROD_DATADISK", "DESY-HH_SCRATCHDISK"}, names(got))
}

func TestEvaluateBareRSEName(t *testing.T) {
	got, err := Evaluate("CERN-PROD_TAPE", testUniverse())
	require.NoError(t, err)
	assert.Equal(t, []string{"CERN-PROD_TAPE"}, names(got))
}

func TestEvaluateEquality(t *testing.T) {
	got, err := Evaluate("tier=1", testUniverse())
	require.NoError(t, err)
	assert.Equal(t, []string{"BNL-OSG2_DATADISK", "CERN-PROD_DATADISK", "CERN-PROD_TAPE"}, names(got))
}

func TestEvaluateIntersection(t *testing.T) {
	got, err := Evaluate("tier=1&country=us", testUniverse())
	require.NoError(t, err)
	assert.Equal(t, []string{"BNL-OSG2_DATADISK"}, names(got))
}

func TestEvaluateUnion(t *testing.T) {
	got, err := Evaluate("country=de|country=us", testUniverse())
	require.NoError(t, err)
	assert.Equal(t, []string{"BNL-OSG2_DATADISK", "DESY-HH_SCRATCHDISK"}, names(got))
}

func TestEvaluateDifference(t *testing.T) {
	got, err := Evaluate("disk\\country=de", testUniverse())
	require.NoError(t, err)
	assert.Equal(t, []string{"BNL-OSG2_DATADISK", "CERN-PROD_DATADISK"}, names(got))
}

func TestEvaluatePrecedence(t *testing.T) {
	// '&' binds tighter than '\', which binds tighter than '|': this reads
	// as (country=ch & tape) | (disk \ country=de).
	got, err := Evaluate("country=ch&tape|disk\\country=de", testUniverse())
	require.NoError(t, err)
	assert.Equal(t, []string{"BNL-OSG2_DATADISK", "CERN-PROD_DATADISK", "CERN-PROD_TAPE"}, names(got))
}

func TestEvaluateParentheses(t *testing.T) {
	got, err := Evaluate("(country=ch|country=us)&tier=1", testUniverse())
	require.NoError(t, err)
	assert.Equal(t, []string{"BNL-OSG2_DATADISK", "CERN-PROD_DATADISK", "CERN-PROD_TAPE"}, names(got))
}

func TestEvaluateUnknownIdentifierIsEmptySet(t *testing.T) {
	got, err := Evaluate("nonexistent_attribute", testUniverse())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEvaluateDeduplicates(t *testing.T) {
	got, err := Evaluate("disk|disk", testUniverse())
	require.NoError(t, err)
	assert.Equal(t, []string{"BNL-OSG2_DATADISK", "CERN-PROD_DATADISK", "DESY-HH_SCRATCHDISK"}, names(got))
}

func TestEvaluateInvalidSyntax(t *testing.T) {
	cases := []string{
		"tier=",
		"&tier",
		"(tier=1",
		"tier=1)",
		"tier=1 tier=2",
		"#bad",
	}
	for _, expr := range cases {
		_, err := Evaluate(expr, testUniverse())
		require.Error(t, err, "expr %q should be invalid", expr)
		assert.Equal(t, catalogerr.InvalidRSEExpression, catalogerr.KindOf(err), "expr %q", expr)
	}
}

func TestEvaluateEmptyExpression(t *testing.T) {
	_, err := Evaluate("", testUniverse())
	require.Error(t, err)
	assert.Equal(t, catalogerr.InvalidRSEExpression, catalogerr.KindOf(err))
}
