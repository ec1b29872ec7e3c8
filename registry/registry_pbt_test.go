package registry

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/internal/testutil"
)

// For any interleaving of registrations and unloads, Register succeeds iff
// the uploaded count is below the ceiling, and a rejected Register leaves
// the registry unchanged.
func TestRegistryCeiling_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ceiling := rapid.IntRange(0, 6).Draw(t, "ceiling")
		r := newRegistry(ceiling)
		var ids []string

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if len(ids) > 0 && rapid.Bool().Draw(t, "unload") {
				idx := rapid.IntRange(0, len(ids)-1).Draw(t, "idx")
				if err := r.Unload(context.Background(), ids[idx]); err != nil {
					t.Fatalf("unload: %v", err)
				}
				ids = append(ids[:idx], ids[idx+1:]...)
				continue
			}

			before := r.List()
			id, err := r.Register(testutil.NewLoadedAgent("x", core.OriginUploaded, testutil.NewStaticRuntime("x", "e2e4")))
			switch {
			case len(before) < ceiling:
				if err != nil {
					t.Fatalf("register below ceiling: %v", err)
				}
				ids = append(ids, id)
			default:
				if !errors.Is(err, core.ErrRegistryFull) {
					t.Fatalf("expected ErrRegistryFull, got %v", err)
				}
				if len(r.List()) != len(before) {
					t.Fatalf("rejected register changed the registry")
				}
			}
			if r.UploadedCount() > ceiling {
				t.Fatalf("uploaded count %d exceeds ceiling %d", r.UploadedCount(), ceiling)
			}
		}
	})
}
