package payload

import (
	"fmt"
	"reflect"
)

// Tag identifies the concrete type a Payload was constructed with.
// The zero Tag belongs to the empty Payload.
type Tag struct {
	t reflect.Type
}

// TagOf returns the tag for type T.
func TagOf[T any]() Tag {
	return Tag{t: reflect.TypeFor[T]()}
}

// String returns the Go type name, or "<none>" for the zero tag.
func (t Tag) String() string {
	if t.t == nil {
		return "<none>"
	}
	return t.t.String()
}

// IsZero reports whether t is the tag of the empty payload.
func (t Tag) IsZero() bool {
	return t.t == nil
}

// Payload is a single typed value passed through the bus.
// Payloads are immutable values; copying one is cheap.
type Payload struct {
	value any
	tag   Tag
}

// New wraps v, tagging it with T.
func New[T any](v T) Payload {
	return Payload{value: v, tag: TagOf[T]()}
}

// Of wraps v, tagging it with its dynamic type. A nil v yields the empty
// payload. Statically typed code should use New.
func Of(v any) Payload {
	if v == nil {
		return Payload{}
	}
	return Payload{value: v, tag: Tag{t: reflect.TypeOf(v)}}
}

// Empty returns the payload carrying no value.
func Empty() Payload {
	return Payload{}
}

// As extracts the value as T. It fails with a *MismatchError unless T is
// exactly the type the payload was constructed with.
func As[T any](p Payload) (T, error) {
	var zero T
	want := TagOf[T]()
	if p.tag != want {
		return zero, &MismatchError{Want: want, Got: p.tag}
	}
	v, ok := p.value.(T)
	if !ok {
		// Only reachable for interface-typed payloads holding nil.
		return zero, nil
	}
	return v, nil
}

// MustAs is As for callers that treat a mismatch as a programming error.
func MustAs[T any](p Payload) T {
	v, err := As[T](p)
	if err != nil {
		panic(err)
	}
	return v
}

// Is reports whether p carries a T.
func Is[T any](p Payload) bool {
	return p.tag == TagOf[T]()
}

// Tag returns the payload's type tag.
func (p Payload) Tag() Tag {
	return p.tag
}

// IsZero reports whether p is the empty payload.
func (p Payload) IsZero() bool {
	return p.tag.IsZero()
}

// Raw returns the erased value. It exists for generic converters (the script
// bridge); typed consumers use As.
func (p Payload) Raw() any {
	return p.value
}

// String formats the payload for logs.
func (p Payload) String() string {
	if p.IsZero() {
		return "payload(<none>)"
	}
	return fmt.Sprintf("payload(%s: %v)", p.tag, p.value)
}

// Batch is the ordered set of payloads accumulated by a script event during
// one frame.
type Batch []Payload
