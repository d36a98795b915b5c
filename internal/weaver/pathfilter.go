package weaver

import "strings"

// noisyPrefixes are path roots that generate high-volume, low-signal
// traffic (scratch space, virtual filesystems) that isn't worth an
// audit event unless the access actually mutates something.
var noisyPrefixes = []string{
	"/tmp/",
	"/var/tmp/",
	"/proc/",
	"/sys/",
	"/dev/",
}

// isNoisyPath reports whether path falls under one of the suppressed
// roots. The rule set is fixed at compile time but kept in one place
// (noisyPrefixes) so it's easy to extend.
func isNoisyPath(path string) bool {
	for _, prefix := range noisyPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// acceptPath applies the path filter: a noisy-root path is suppressed
// unless isMutation is set (a write or metadata change), since those are
// worth keeping regardless of where they happen.
func acceptPath(path string, isMutation bool) bool {
	if !isNoisyPath(path) {
		return true
	}
	return isMutation
}
