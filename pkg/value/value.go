// Package value implements the universal runtime datum of the language:
// a small tagged union of nil, boolean, number and object-handle kinds.
//
// Values are copied by plain Go assignment (the struct is a kind tag plus
// one field per payload kind), never boxed. An Object payload is a handle
// into a pkg/object.Heap, not an owning reference — the heap outlives
// every Value that points into it.
package value

import "fmt"

// Kind discriminates the case held by a Value.
type Kind byte

const (
	Nil Kind = iota
	Boolean
	Number
	Object
)

func (k Kind) String() string {
	switch k {
	case Nil:
		return "nil"
	case Boolean:
		return "boolean"
	case Number:
		return "number"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// ObjectHandle is a stable, copyable, non-owning reference into an
// object heap. Its zero value never refers to a live object.
type ObjectHandle uintptr

// Value is the tagged-union runtime datum described in the language
// specification: Nil, Boolean, Number(f32) or Object(handle).
//
// Number is carried as float32: comparisons and arithmetic follow
// IEEE-754 single-precision semantics, including NaN != NaN.
type Value struct {
	kind   Kind
	number float32
	boolean bool
	object  ObjectHandle
}

// NilValue is the single Nil value.
var NilValue = Value{kind: Nil}

// Bool constructs a Boolean value.
func Bool(b bool) Value { return Value{kind: Boolean, boolean: b} }

// Num constructs a Number value.
func Num(n float32) Value { return Value{kind: Number, number: n} }

// Obj constructs an Object value from a heap handle.
func Obj(h ObjectHandle) Value { return Value{kind: Object, object: h} }

// Kind reports which case this Value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the Nil value.
func (v Value) IsNil() bool { return v.kind == Nil }

// IsBool reports whether v holds a Boolean.
func (v Value) IsBool() bool { return v.kind == Boolean }

// IsNumber reports whether v holds a Number.
func (v Value) IsNumber() bool { return v.kind == Number }

// IsObject reports whether v holds an Object handle.
func (v Value) IsObject() bool { return v.kind == Object }

// AsBool returns the boolean payload. Only meaningful when IsBool.
func (v Value) AsBool() bool { return v.boolean }

// AsNumber returns the number payload. Only meaningful when IsNumber.
func (v Value) AsNumber() float32 { return v.number }

// AsObject returns the object handle payload. Only meaningful when IsObject.
func (v Value) AsObject() ObjectHandle { return v.object }

// IsFalsy implements the language's truthiness rule: Nil and
// Boolean(false) are falsy, every other value (including Number(0))
// is truthy.
func (v Value) IsFalsy() bool {
	switch v.kind {
	case Nil:
		return true
	case Boolean:
		return !v.boolean
	default:
		return false
	}
}

// Equal implements Equal-opcode comparison semantics: Nil equals Nil;
// Boolean equals only a matching Boolean; Number compares by IEEE-754
// equality (NaN != NaN); Object handles compare by identity (which,
// given string interning, is equivalent to content equality for
// Strings). Values of differing kinds are never equal.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Nil:
		return true
	case Boolean:
		return a.boolean == b.boolean
	case Number:
		return a.number == b.number
	case Object:
		return a.object == b.object
	default:
		return false
	}
}

// String renders the Go-side debug form of a Value. It does not
// implement the language's Object display form (string objects need
// the heap to resolve their bytes) — see pkg/vm for the full display
// form used by the Print opcode.
func (v Value) String() string {
	switch v.kind {
	case Nil:
		return "nil"
	case Boolean:
		if v.boolean {
			return "true"
		}
		return "false"
	case Number:
		return fmt.Sprintf("%v", v.number)
	case Object:
		return fmt.Sprintf("object(%d)", v.object)
	default:
		return "<invalid value>"
	}
}
