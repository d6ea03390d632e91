package fold

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"John", "JOHN"},
		{"Émile", "émile"},
		{"AMÉLIE", "amélie"},
		{"Straße", "STRASSE"},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, String(tt.a), String(tt.b), "%q vs %q", tt.a, tt.b)
	}
	require.NotEqual(t, String("Emile"), String("Émile"))
}
