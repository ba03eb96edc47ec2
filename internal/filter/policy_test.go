package filter

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sniper_bot/internal/model"
)

func TestPolicyUpdate(t *testing.T) {
	h := NewPolicy(model.FilterPolicy{
		AllowedBrands: []string{"nike"},
		MaxPrice:      dec("40"),
		RequireImage:  true,
	})

	before := h.Load()

	sizes := []string{"m", "l"}
	got, err := h.Update(model.PolicyPatch{
		AllowedSizes: &sizes,
		MaxPrice:     dec("25"),
		Unset:        []string{model.FieldAllowedBrands},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	want := model.FilterPolicy{
		AllowedSizes: []string{"m", "l"},
		MaxPrice:     dec("25"),
		RequireImage: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Update mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, h.Load()); diff != "" {
		t.Errorf("Load after update mismatch (-want +got):\n%s", diff)
	}

	// The snapshot taken before the update is unchanged.
	if diff := cmp.Diff([]string{"nike"}, before.AllowedBrands); diff != "" {
		t.Errorf("old snapshot mutated (-want +got):\n%s", diff)
	}
}

func TestPolicyUpdateRejectsInvalid(t *testing.T) {
	h := NewPolicy(model.FilterPolicy{MaxPrice: dec("40")})

	if _, err := h.Update(model.PolicyPatch{MinPrice: dec("50")}); err == nil {
		t.Fatal("expected error for min above max")
	}
	if _, err := h.Update(model.PolicyPatch{Unset: []string{"colour"}}); err == nil {
		t.Fatal("expected error for unknown field")
	}
	if diff := cmp.Diff(model.FilterPolicy{MaxPrice: dec("40")}, h.Load()); diff != "" {
		t.Errorf("policy changed after rejected update (-want +got):\n%s", diff)
	}
}

func TestPolicyConcurrentUpdates(t *testing.T) {
	h := NewPolicy(model.FilterPolicy{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			age := n
			if _, err := h.Update(model.PolicyPatch{MaxAgeMinutes: &age}); err != nil {
				t.Errorf("update: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			p := h.Load()
			_ = Evaluate(model.Listing{Title: "x"}, p)
		}()
	}
	wg.Wait()

	if h.Load().MaxAgeMinutes == nil {
		t.Fatal("expected max age to be set")
	}
}
