package normalize

import (
	"strings"
	"testing"
)

func TestEmail(t *testing.T) {
	in := "  John.DOE@Example.COM  "
	want := "john.doe@example.com"
	got := Email(in)
	if got != want {
		t.Fatalf("Normalize.Email(%q) = %q, want %q", in, got, want)
	}
}

func TestKey(t *testing.T) {
	in := "John.DOE@Example.COM"
	want := "john-doe-example-com"
	got := Key(in)
	if got != want {
		t.Fatalf("Normalize.Key(%q) = %q, want %q", in, got, want)
	}
}

func TestKeyIsSafeAndIdempotent(t *testing.T) {
	for _, in := range []string{"a@x.com", "b@x.com", "first.last@sub.example.org"} {
		k := Key(in)
		if strings.ContainsAny(k, ".@") {
			t.Fatalf("Key(%q) = %q still contains forbidden characters", in, k)
		}
		if again := Key(k); again != k {
			t.Fatalf("Key not idempotent: Key(%q) = %q", k, again)
		}
	}
}
