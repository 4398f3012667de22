package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// comparisons. Normalization currently trims surrounding whitespace and
// lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Key converts an email address into a key that is safe to use as a
// path segment in the remote tree store, which forbids "." in node
// names. Every "." and "@" is replaced with "-". The mapping is
// deterministic and idempotent but not reversible; callers that need
// the original address must keep it alongside the key.
func Key(e string) string {
	r := strings.NewReplacer(".", "-", "@", "-")
	return r.Replace(Email(e))
}
