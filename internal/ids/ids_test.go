package ids

import (
	"strings"
	"testing"
	"time"
)

func TestNewIsSortable(t *testing.T) {
	a := NewAt(time.Unix(1000, 0))
	b := NewAt(time.Unix(2000, 0))
	if !(a < b) {
		t.Fatalf("expected %s < %s", a, b)
	}
}

func TestPrefixedAndValid(t *testing.T) {
	id := Prefixed("sess")
	if !strings.HasPrefix(id, "sess_") {
		t.Fatalf("missing prefix: %s", id)
	}
	if !Valid(id) {
		t.Fatalf("expected %s to be valid", id)
	}
	if Valid("sess_not-a-ulid") {
		t.Fatalf("expected invalid id to be rejected")
	}
	if Prefixed("  ") == "" {
		t.Fatalf("expected bare id for empty prefix")
	}
}
