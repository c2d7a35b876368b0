package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringIncludesComponents(t *testing.T) {
	s := String()
	require.Contains(t, s, "hark ")
	require.Contains(t, s, "commit=")
	require.Contains(t, s, "go=")
}
