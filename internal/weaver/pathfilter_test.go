package weaver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcceptPathSuppressesNoisyReads(t *testing.T) {
	require.False(t, acceptPath("/tmp/scratch.txt", false))
	require.False(t, acceptPath("/proc/self/status", false))
	require.False(t, acceptPath("/sys/class/net", false))
	require.False(t, acceptPath("/dev/null", false))
}

func TestAcceptPathKeepsNoisyMutations(t *testing.T) {
	require.True(t, acceptPath("/tmp/scratch.txt", true))
	require.True(t, acceptPath("/proc/self/status", true))
}

func TestAcceptPathKeepsNonNoisyPaths(t *testing.T) {
	require.True(t, acceptPath("/home/user/project/main.go", false))
	require.True(t, acceptPath("/etc/hosts", false))
}
