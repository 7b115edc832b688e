package ptr_test

import (
	"testing"
	"time"

	"github.com/myrjola/trainengine/internal/ptr"
)

func TestRef(t *testing.T) {
	t.Parallel()
	anchor := time.Date(2026, time.October, 12, 9, 0, 0, 0, time.UTC)
	p := ptr.Ref(anchor)
	anchor = anchor.AddDate(0, 0, 1)
	if p.Equal(anchor) {
		t.Errorf("Ref() = %v, want a copy unaffected by later changes", *p)
	}
}
