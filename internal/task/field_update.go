package task

// FieldUpdate is a tri-state partial-update signal for a single field:
// leave the field alone, clear it, or set it to a value. The zero value
// means "unchanged", so callers only name the fields they touch.
type FieldUpdate[T any] struct {
	set   bool
	clear bool
	value T
}

// Unchanged returns an update that leaves the field as-is.
func Unchanged[T any]() FieldUpdate[T] {
	return FieldUpdate[T]{}
}

// Clear returns an update that resets the field to its zero value.
func Clear[T any]() FieldUpdate[T] {
	return FieldUpdate[T]{clear: true}
}

// Set returns an update that assigns v to the field.
func Set[T any](v T) FieldUpdate[T] {
	return FieldUpdate[T]{set: true, value: v}
}

// IsSet reports whether the update carries a value.
func (f FieldUpdate[T]) IsSet() bool { return f.set }

// IsClear reports whether the update clears the field.
func (f FieldUpdate[T]) IsClear() bool { return f.clear }

// IsUnchanged reports whether the update is a no-op.
func (f FieldUpdate[T]) IsUnchanged() bool { return !f.set && !f.clear }

// Value returns the carried value; meaningful only when IsSet.
func (f FieldUpdate[T]) Value() T { return f.value }

// Apply resolves the update against the current field value.
func (f FieldUpdate[T]) Apply(current T) T {
	switch {
	case f.set:
		return f.value
	case f.clear:
		var zero T
		return zero
	default:
		return current
	}
}
