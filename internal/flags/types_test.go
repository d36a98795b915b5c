package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashStableRegardlessOfAttributeOrder(t *testing.T) {
	a := EvaluationContext{
		UserID: "u1", OrgID: "o1", Environment: "prod",
		Attributes: map[string]any{"plan": "pro", "cohort": "beta"},
	}
	b := EvaluationContext{
		UserID: "u1", OrgID: "o1", Environment: "prod",
		Attributes: map[string]any{"cohort": "beta", "plan": "pro"},
	}
	require.Equal(t, a.Hash("new-editor"), b.Hash("new-editor"))
}

func TestHashDiffersByFlagKey(t *testing.T) {
	ctx := EvaluationContext{UserID: "u1", OrgID: "o1"}
	require.NotEqual(t, ctx.Hash("flag-a"), ctx.Hash("flag-b"))
}

func TestHashDiffersByContextField(t *testing.T) {
	a := EvaluationContext{UserID: "u1", OrgID: "o1"}
	b := EvaluationContext{UserID: "u2", OrgID: "o1"}
	require.NotEqual(t, a.Hash("flag"), b.Hash("flag"))
}

func TestHashStableAcrossGeoFields(t *testing.T) {
	a := EvaluationContext{UserID: "u1", GeoCountry: "US", GeoRegion: "CA", GeoCity: "SF"}
	b := EvaluationContext{UserID: "u1", GeoCountry: "US", GeoRegion: "CA", GeoCity: "SF"}
	require.Equal(t, a.Hash("flag"), b.Hash("flag"))

	c := EvaluationContext{UserID: "u1", GeoCountry: "US", GeoRegion: "NY", GeoCity: "NYC"}
	require.NotEqual(t, a.Hash("flag"), c.Hash("flag"))
}
