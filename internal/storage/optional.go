package storage

// Option is an optional value used for entity fields where the backend may
// hold no value at all: page limits, balances, date limits. Null coercion is
// the backend adapter's job; the rest of the engine only ever sees Options.
type Option[T any] struct {
	value T
	valid bool
}

// Some returns an Option holding v.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, valid: true}
}

// None returns an empty Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Valid reports whether the Option holds a value.
func (o Option[T]) Valid() bool { return o.valid }

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) { return o.value, o.valid }

// Value returns the held value, or the zero value when empty.
func (o Option[T]) Value() T { return o.value }

// OrElse returns the held value, or def when empty.
func (o Option[T]) OrElse(def T) T {
	if o.valid {
		return o.value
	}
	return def
}

// FromPtr converts a nullable pointer, as read from a backend record, into
// an Option.
func FromPtr[T any](p *T) Option[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

// ToPtr converts an Option into a nullable pointer for a backend write.
func ToPtr[T any](o Option[T]) *T {
	if !o.valid {
		return nil
	}
	v := o.value
	return &v
}
