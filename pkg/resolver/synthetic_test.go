// Copyright 2025-2026 Tigro14

package resolver

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

func TestSyntheticIDDeterministic(t *testing.T) {
	t.Parallel()
	names := []string{"Alice", "alice", "Node 42", "", "🛰 relay", "long name with spaces and символы"}
	for _, name := range names {
		a := SyntheticID(name)
		b := SyntheticID(name)
		if a != b {
			t.Errorf("SyntheticID(%q) unstable: %#x vs %#x", name, a, b)
		}
	}
	if SyntheticID("Alice") == SyntheticID("alice") {
		t.Error("case-distinct names should normally derive distinct IDs")
	}
}

func TestSyntheticIDAvoidsReservedValues(t *testing.T) {
	t.Parallel()
	// Brute sweep over generated names; none may land on a reserved value.
	for i := 0; i < 5000; i++ {
		name := fmt.Sprintf("node-%d", i)
		id := SyntheticID(name)
		if id == 0 || id == mesh.Broadcast || id == mesh.LocalUnknown {
			t.Fatalf("SyntheticID(%q) = %#x is reserved", name, id)
		}
	}
}

// dirtyByField exposes the dirty flag as an addressable field.
type dirtyByField struct{ dirty bool }

func (d *dirtyByField) DirtyField() *bool { return &d.dirty }

// dirtyByAccessor exposes a setter.
type dirtyByAccessor struct{ dirty bool }

func (d *dirtyByAccessor) SetDirty(v bool) { d.dirty = v }

// dirtyNone exposes neither mutation path.
type dirtyNone struct{}

func TestMarkDirectoryDirty(t *testing.T) {
	t.Parallel()
	log := zerolog.Nop()

	f := &dirtyByField{}
	if !MarkDirectoryDirty(f, log) || !f.dirty {
		t.Error("field-mutable directory should be marked dirty")
	}

	a := &dirtyByAccessor{}
	if !MarkDirectoryDirty(a, log) || !a.dirty {
		t.Error("accessor-mutable directory should be marked dirty")
	}

	if MarkDirectoryDirty(&dirtyNone{}, log) {
		t.Error("directory without a mutation path should fail soft")
	}
}
