package bytecode

import (
	"fmt"
	"strings"

	"github.com/daimatz/classpatch/pkg/classfile"
)

// Kind enumerates the verification types of the StackMapTable attribute.
type Kind uint8

const (
	KindTop Kind = iota
	KindInteger
	KindFloat
	KindDouble
	KindLong
	KindNull
	KindUninitializedThis
	KindObject
	KindUninitialized
)

// VType is a verification type. Long and double occupy two slots: the
// value itself followed by a Top.
type VType struct {
	Kind Kind
	// Class is the internal name (or array descriptor) for KindObject and
	// the class being constructed for KindUninitialized.
	Class string
	// New is the "new" instruction that created a KindUninitialized value.
	New *Insn
}

var (
	Top               = VType{Kind: KindTop}
	Integer           = VType{Kind: KindInteger}
	Float             = VType{Kind: KindFloat}
	Long              = VType{Kind: KindLong}
	Double            = VType{Kind: KindDouble}
	Null              = VType{Kind: KindNull}
	UninitializedThis = VType{Kind: KindUninitializedThis}
)

// Object returns the verification type of a reference to the named class.
func Object(class string) VType {
	return VType{Kind: KindObject, Class: class}
}

func (t VType) wide() bool {
	return t.Kind == KindLong || t.Kind == KindDouble
}

func (t VType) isReference() bool {
	switch t.Kind {
	case KindNull, KindObject, KindUninitialized, KindUninitializedThis:
		return true
	}
	return false
}

func (t VType) String() string {
	switch t.Kind {
	case KindTop:
		return "top"
	case KindInteger:
		return "int"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindLong:
		return "long"
	case KindNull:
		return "null"
	case KindUninitializedThis:
		return "uninitializedThis"
	case KindObject:
		return t.Class
	case KindUninitialized:
		return "uninitialized(" + t.Class + ")"
	}
	return fmt.Sprintf("kind(%d)", t.Kind)
}

// typeOf returns the verification type of a field descriptor.
func typeOf(desc string) VType {
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return Integer
	case 'F':
		return Float
	case 'J':
		return Long
	case 'D':
		return Double
	case 'L':
		return Object(strings.TrimSuffix(desc[1:], ";"))
	}
	return Object(desc)
}

// frameError aborts the analysis of a method. It is raised as a panic by
// Frame operations and recovered by Analyze.
type frameError string

func (e frameError) Error() string { return string(e) }

// Frame is the abstract state before an instruction: the types of the
// local variables and of the operand stack, one entry per slot.
type Frame struct {
	Locals []VType
	Stack  []VType
}

// NewFrame creates a frame with the given locals and an empty stack.
func NewFrame(locals []VType) *Frame {
	return &Frame{Locals: locals}
}

func (f *Frame) clone() *Frame {
	return &Frame{
		Locals: append([]VType(nil), f.Locals...),
		Stack:  append([]VType(nil), f.Stack...),
	}
}

// Push pushes a value; long and double push two slots.
func (f *Frame) Push(t VType) {
	f.Stack = append(f.Stack, t)
	if t.wide() {
		f.Stack = append(f.Stack, Top)
	}
}

// Pop pops one slot.
func (f *Frame) Pop() VType {
	if len(f.Stack) == 0 {
		panic(frameError("operand stack underflow"))
	}
	t := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return t
}

// PopN pops n slots and returns them bottom first.
func (f *Frame) PopN(n int) []VType {
	if len(f.Stack) < n {
		panic(frameError(fmt.Sprintf("operand stack underflow: need %d, have %d", n, len(f.Stack))))
	}
	popped := append([]VType(nil), f.Stack[len(f.Stack)-n:]...)
	f.Stack = f.Stack[:len(f.Stack)-n]
	return popped
}

// PopValue pops a value of the given type: two slots for long and double.
func (f *Frame) PopValue(t VType) VType {
	if t.wide() {
		f.PopN(2)
		return t
	}
	return f.Pop()
}

// GetLocal returns the type of a local variable slot.
func (f *Frame) GetLocal(index int) VType {
	if index < 0 || index >= len(f.Locals) {
		panic(frameError(fmt.Sprintf("local variable index out of range: index=%d, max=%d", index, len(f.Locals))))
	}
	return f.Locals[index]
}

// SetLocal stores a value, growing the locals as needed. Storing over one
// half of a long or double invalidates the other half.
func (f *Frame) SetLocal(index int, t VType) {
	width := 1
	if t.wide() {
		width = 2
	}
	for len(f.Locals) < index+width {
		f.Locals = append(f.Locals, Top)
	}
	if index > 0 && f.Locals[index-1].wide() {
		f.Locals[index-1] = Top
	}
	f.Locals[index] = t
	if width == 2 {
		f.Locals[index+1] = Top
	}
}

// replace substitutes every occurrence of from in the frame; used when a
// constructor call initializes an object.
func (f *Frame) replace(from, to VType) {
	for i, t := range f.Locals {
		if t == from {
			f.Locals[i] = to
		}
	}
	for i, t := range f.Stack {
		if t == from {
			f.Stack[i] = to
		}
	}
}

// entryFrame builds the frame at method entry from the access flags and
// descriptor.
func entryFrame(owner string, access uint16, name string, md *classfile.MethodDescriptor) *Frame {
	f := &Frame{}
	if access&classfile.AccStatic == 0 {
		if name == "<init>" && owner != "java/lang/Object" {
			f.Locals = append(f.Locals, UninitializedThis)
		} else {
			f.Locals = append(f.Locals, Object(owner))
		}
	}
	for _, p := range md.Params {
		f.SetLocal(len(f.Locals), typeOf(p))
	}
	return f
}
