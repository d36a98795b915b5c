package auth

import (
	"regexp"
	"strings"
)

// reservedUsernames can never be claimed by a user, whether typed
// directly or produced by GenerateUsernameBase from an email/OAuth
// display name.
var reservedUsernames = map[string]struct{}{
	"admin":         {},
	"administrator": {},
	"root":          {},
	"system":        {},
	"support":       {},
	"help":          {},
	"api":           {},
	"www":           {},
	"loom":          {},
	"null":          {},
	"undefined":     {},
	"me":            {},
	"settings":      {},
	"billing":       {},
	"security":      {},
}

const (
	usernameMinLen = 3
	usernameMaxLen = 39
)

var (
	usernameCharPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	allDigitsPattern    = regexp.MustCompile(`^[0-9]+$`)
)

// ValidateUsername enforces the username shape and reserved-word list:
// length 3-39, ASCII alphanumerics and underscore only, first character
// not an underscore, not all digits. It does not check uniqueness;
// that's a repository-level constraint.
func ValidateUsername(username string) error {
	if len(username) < usernameMinLen || len(username) > usernameMaxLen {
		return invalidUsername("must be 3-39 characters")
	}
	if !usernameCharPattern.MatchString(username) {
		return invalidUsername("must contain only ASCII letters, digits, and underscores")
	}
	if username[0] == '_' {
		return invalidUsername("must not start with an underscore")
	}
	if allDigitsPattern.MatchString(username) {
		return invalidUsername("must not be all digits")
	}
	if _, reserved := reservedUsernames[strings.ToLower(username)]; reserved {
		return ErrUsernameReserved
	}
	return nil
}

// underscoreRuns collapses consecutive underscores into one, mirroring
// the space/punctuation collapsing a human display name needs.
var underscoreRuns = regexp.MustCompile(`_+`)

// GenerateUsernameBase derives a candidate username from a free-form
// display name or the local part of an email address: the pre-@ portion
// (if any), lowercased, with every non-alphanumeric run collapsed to a
// single underscore and leading and trailing underscores trimmed. A
// result under 3 characters is prefixed with "user_"; the result is
// clamped to 39 characters. A result that is a reserved username gets
// "_user" appended. The result is not guaranteed unique; callers append
// a numeric suffix on collision and re-validate.
func GenerateUsernameBase(seed string) string {
	if at := strings.IndexByte(seed, '@'); at >= 0 {
		seed = seed[:at]
	}
	seed = strings.ToLower(seed)

	var b strings.Builder
	for _, r := range seed {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	base := underscoreRuns.ReplaceAllString(b.String(), "_")
	base = strings.TrimLeft(base, "_")
	base = strings.TrimRight(base, "_")

	if len(base) < usernameMinLen {
		base = "user_" + base
	}
	if len(base) > usernameMaxLen {
		base = base[:usernameMaxLen]
		base = strings.TrimRight(base, "_")
	}

	if _, reserved := reservedUsernames[base]; reserved {
		base += "_user"
		if len(base) > usernameMaxLen {
			base = base[:usernameMaxLen]
		}
	}
	return base
}
