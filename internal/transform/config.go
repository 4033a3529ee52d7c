// Package transform implements the pairwise operational transform of
// concurrent operations (spec §4.2). Transform is pure and side-effect
// free: given two concurrent operations it returns a rewritten op1 plus an
// optional conflict description for the host to surface.
package transform

// TextConflictStrategy resolves overlapping text_replace operations.
type TextConflictStrategy string

const (
	TextPreferLatest TextConflictStrategy = "prefer_latest"
	TextMerge        TextConflictStrategy = "merge"
	TextManual       TextConflictStrategy = "manual"
)

// FieldConflictStrategy resolves concurrent field_update operations.
type FieldConflictStrategy string

const (
	FieldPreferLatest FieldConflictStrategy = "prefer_latest"
	FieldPreferLocal  FieldConflictStrategy = "prefer_local"
	FieldManual       FieldConflictStrategy = "manual"
)

// StructuralConflictStrategy resolves concurrent structural operations that
// the per-kind rules can't already resolve deterministically.
type StructuralConflictStrategy string

const (
	StructuralPreferLatest StructuralConflictStrategy = "prefer_latest"
	StructuralManual       StructuralConflictStrategy = "manual"
)

// Config is the engine-supplied conflict-resolution policy (spec §6).
// Validate rejects unknown strategy values; neither DefaultConfig nor
// engine.New calls it.
type Config struct {
	TextConflicts       TextConflictStrategy
	FieldConflicts      FieldConflictStrategy
	StructuralConflicts StructuralConflictStrategy
}

// DefaultConfig mirrors the spec's preserved default: prefer_latest for
// text and field conflicts. The open question over `merge`'s production
// readiness (spec §9) is resolved here by NOT defaulting to it; callers
// must opt in explicitly.
func DefaultConfig() Config {
	return Config{
		TextConflicts:       TextPreferLatest,
		FieldConflicts:      FieldPreferLatest,
		StructuralConflicts: StructuralPreferLatest,
	}
}

// Validate rejects a config carrying an unrecognized strategy value.
func (c Config) Validate() error {
	switch c.TextConflicts {
	case TextPreferLatest, TextMerge, TextManual:
	default:
		return errUnknownStrategy("textConflicts", string(c.TextConflicts))
	}
	switch c.FieldConflicts {
	case FieldPreferLatest, FieldPreferLocal, FieldManual:
	default:
		return errUnknownStrategy("fieldConflicts", string(c.FieldConflicts))
	}
	switch c.StructuralConflicts {
	case StructuralPreferLatest, StructuralManual:
	default:
		return errUnknownStrategy("structuralConflicts", string(c.StructuralConflicts))
	}
	return nil
}
