// Copyright 2025-2026 Tigro14

package resolver

import "github.com/rs/zerolog"

// The event-oriented network's client library exposes a contact directory
// object with a "dirty / needs reload" flag whose mutation path has
// changed across library versions: some expose the field directly, some
// only through an accessor. The probe below detects which path is
// available at runtime and degrades to a logged no-op instead of crashing
// when neither is.

// DirectFieldMutable is implemented by directory objects that expose the
// dirty flag as an addressable field.
type DirectFieldMutable interface {
	DirtyField() *bool
}

// AccessorMutable is implemented by directory objects that expose a
// setter for the dirty flag.
type AccessorMutable interface {
	SetDirty(dirty bool)
}

// MarkDirectoryDirty flags the contact directory as needing a reload,
// using whichever mutation path the object supports. Returns false when
// neither capability is present.
func MarkDirectoryDirty(dir any, log zerolog.Logger) bool {
	switch d := dir.(type) {
	case AccessorMutable:
		d.SetDirty(true)
		return true
	case DirectFieldMutable:
		if f := d.DirtyField(); f != nil {
			*f = true
			return true
		}
	}
	log.Warn().Msg("Contact directory exposes no dirty-flag mutation path, skipping reload mark")
	return false
}
