package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/daimatz/classpatch/pkg/classfile"
)

func TestFramePushPop(t *testing.T) {
	t.Run("LIFO order", func(t *testing.T) {
		frame := NewFrame(nil)

		frame.Push(Integer)
		frame.Push(Float)
		frame.Push(Object("java/lang/String"))

		assert.Equal(t, Object("java/lang/String"), frame.Pop())
		assert.Equal(t, Float, frame.Pop())
		assert.Equal(t, Integer, frame.Pop())
	})

	t.Run("long takes two slots", func(t *testing.T) {
		frame := NewFrame(nil)

		frame.Push(Long)
		assert.Equal(t, []VType{Long, Top}, frame.Stack)
		assert.Equal(t, Long, frame.PopValue(Long))
		assert.Empty(t, frame.Stack)
	})

	t.Run("underflow", func(t *testing.T) {
		frame := NewFrame(nil)
		assert.PanicsWithValue(t, frameError("operand stack underflow"), func() { frame.Pop() })
		assert.Panics(t, func() { frame.PopN(2) })
	})
}

func TestFrameLocalVars(t *testing.T) {
	t.Run("basic set and get", func(t *testing.T) {
		frame := NewFrame(nil)

		frame.SetLocal(0, Integer)
		frame.SetLocal(1, Object("a/B"))

		assert.Equal(t, Integer, frame.GetLocal(0))
		assert.Equal(t, Object("a/B"), frame.GetLocal(1))
	})

	t.Run("non-contiguous set pads with top", func(t *testing.T) {
		frame := NewFrame(nil)

		frame.SetLocal(3, Integer)
		assert.Equal(t, []VType{Top, Top, Top, Integer}, frame.Locals)
	})

	t.Run("overwriting half of a double", func(t *testing.T) {
		frame := NewFrame(nil)

		frame.SetLocal(0, Double)
		frame.SetLocal(1, Integer)
		assert.Equal(t, []VType{Top, Integer}, frame.Locals)
	})

	t.Run("out of range", func(t *testing.T) {
		frame := NewFrame([]VType{Integer})
		assert.Panics(t, func() { frame.GetLocal(1) })
	})
}

func TestEntryFrame(t *testing.T) {
	md, err := classfile.ParseMethodDescriptor("(IJ[Ljava/lang/String;La/B;)V")
	assert.NoError(t, err)

	f := entryFrame("a/Owner", 0, "run", md)
	assert.Equal(t, []VType{
		Object("a/Owner"), Integer, Long, Top, Object("[Ljava/lang/String;"), Object("a/B"),
	}, f.Locals)

	f = entryFrame("a/Owner", 0, "<init>", &classfile.MethodDescriptor{Return: "V"})
	assert.Equal(t, []VType{UninitializedThis}, f.Locals)

	f = entryFrame("a/Owner", classfile.AccStatic, "main", &classfile.MethodDescriptor{Return: "V"})
	assert.Empty(t, f.Locals)
}

func TestDescriptorOps(t *testing.T) {
	assert.Equal(t, byte(OpIload), LoadOp("Z"))
	assert.Equal(t, byte(OpLload), LoadOp("J"))
	assert.Equal(t, byte(OpAload), LoadOp("[I"))
	assert.Equal(t, byte(OpAreturn), ReturnOp("Ljava/lang/String;"))
	assert.Equal(t, byte(OpDreturn), ReturnOp("D"))
	assert.Equal(t, byte(OpReturn), ReturnOp("V"))

	md, err := classfile.ParseMethodDescriptor("(JLa/B;I)V")
	assert.NoError(t, err)
	assert.Equal(t, []*Insn{
		WithIndex(OpLload, 1), WithIndex(OpAload, 3), WithIndex(OpIload, 4),
	}, LoadArgs(md, 1))
}
