package secret

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringNeverRendersValue(t *testing.T) {
	s := New("hunter2")

	require.Equal(t, Redacted, s.String())
	require.Equal(t, Redacted, fmt.Sprintf("%v", s))
	require.Equal(t, "secret.String([REDACTED])", fmt.Sprintf("%#v", s))
	require.Equal(t, "hunter2", s.Expose())
}

func TestStringMarshalJSONRedacts(t *testing.T) {
	s := New("hunter2")

	out, err := json.Marshal(s)
	require.NoError(t, err)
	require.JSONEq(t, `"[REDACTED]"`, string(out))
}

func TestStringUnmarshalJSONIsTransparent(t *testing.T) {
	var s String
	require.NoError(t, json.Unmarshal([]byte(`"hunter2"`), &s))
	require.Equal(t, "hunter2", s.Expose())
	require.False(t, s.IsZero())
}

func TestStringEqualityByValue(t *testing.T) {
	a := New("same")
	b := New("same")
	c := New("different")

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestStringZeroScrubsAndClears(t *testing.T) {
	s := New("hunter2")
	s.Zero()

	require.True(t, s.IsZero())
	require.Equal(t, "", s.Expose())
}

func TestStringZeroValueIsZero(t *testing.T) {
	var s String
	require.True(t, s.IsZero())
	require.Equal(t, "", s.Expose())
}
