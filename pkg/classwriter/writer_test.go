package classwriter

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/classpatch/pkg/bytecode"
	"github.com/daimatz/classpatch/pkg/classfile"
)

// sampleClass builds a small class with a constructor, an instance field
// and a static method with a branch.
func sampleClass(t *testing.T) []byte {
	t.Helper()

	w, err := NewClass(classfile.AccPublic|classfile.AccSuper, "test/Sample", "")
	require.NoError(t, err)
	_, err = w.AddField(classfile.AccPrivate, "count", "I")
	require.NoError(t, err)

	ctor, err := w.Pool().Methodref("java/lang/Object", "<init>", "()V")
	require.NoError(t, err)
	_, err = w.AddMethod(classfile.AccPublic, "<init>", "()V", &bytecode.Code{Insns: []*bytecode.Insn{
		bytecode.WithIndex(bytecode.OpAload, 0),
		bytecode.WithIndex(bytecode.OpInvokespecial, int(ctor)),
		bytecode.Simple(bytecode.OpReturn),
	}})
	require.NoError(t, err)

	zero := bytecode.NewLabel()
	_, err = w.AddMethod(classfile.AccPublic|classfile.AccStatic, "sign", "(I)I", &bytecode.Code{Insns: []*bytecode.Insn{
		bytecode.WithIndex(bytecode.OpIload, 0),
		bytecode.Jump(bytecode.OpIfle, zero),
		bytecode.Push(1),
		bytecode.Simple(bytecode.OpIreturn),
		bytecode.Mark(zero),
		bytecode.Push(0),
		bytecode.Simple(bytecode.OpIreturn),
	}})
	require.NoError(t, err)

	b, err := w.Bytes()
	require.NoError(t, err)
	return b
}

func wrap(t *testing.T, b []byte) *Writer {
	t.Helper()
	cf, err := classfile.ParseBytes(b)
	require.NoError(t, err)
	w, err := New(cf)
	require.NoError(t, err)
	return w
}

func TestUntouchedRoundTrip(t *testing.T) {
	b := sampleClass(t)

	w := wrap(t, b)
	out, err := w.Bytes()
	require.NoError(t, err)
	assert.Equal(t, b, out)

	again, err := w.Bytes()
	require.NoError(t, err)
	assert.Equal(t, b, again)
}

func TestNewClassMetadata(t *testing.T) {
	w := wrap(t, sampleClass(t))
	assert.Equal(t, "test/Sample", w.Name())
	assert.Equal(t, "java/lang/Object", w.SuperName())
	assert.EqualValues(t, DefaultMajorVersion, w.Version())

	sign := w.FindMethod("sign", "(I)I")
	require.NotNil(t, sign)
	assert.True(t, sign.IsStatic())
	assert.True(t, sign.HasCode())
	assert.False(t, sign.Modified())

	raw, err := sign.info.Code(w.Pool().Entries())
	require.NoError(t, err)
	assert.EqualValues(t, 1, raw.MaxStack)
	assert.EqualValues(t, 1, raw.MaxLocals)
	assert.NotNil(t, raw.Attribute(classfile.AttrStackMapTable))
}

func TestModifiedMethodIsRecompiled(t *testing.T) {
	w := wrap(t, sampleClass(t))
	sign := w.FindMethod("sign", "(I)I")
	require.NotNil(t, sign)

	code, err := sign.Instructions()
	require.NoError(t, err)
	assert.True(t, sign.Modified())

	// push two ints and drop them again
	code.Prepend(bytecode.Push(0), bytecode.Push(0), bytecode.Simple(bytecode.OpPop2))

	first, err := w.Bytes()
	require.NoError(t, err)
	second, err := w.Bytes()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	out := wrap(t, first)
	raw, err := out.FindMethod("sign", "(I)I").info.Code(out.Pool().Entries())
	require.NoError(t, err)
	assert.EqualValues(t, 2, raw.MaxStack)
	assert.Equal(t, []byte{bytecode.OpIconst0, bytecode.OpIconst0, bytecode.OpPop2}, raw.Code[:3])

	// the untouched constructor is copied verbatim
	before := w.FindMethod("<init>", "()V").info
	after := out.FindMethod("<init>", "()V").info
	if diff := cmp.Diff(before.Attributes, after.Attributes); diff != "" {
		t.Errorf("constructor attributes changed (-before +after):\n%s", diff)
	}
}

type recorder struct {
	events []string
}

func (r *recorder) VisitField(f *Field) error {
	r.events = append(r.events, "field "+f.Name())
	return nil
}

func (r *recorder) VisitMethod(m *Method) error {
	r.events = append(r.events, "method "+m.Name()+m.Descriptor())
	if m.Name() == "sign" {
		// added members are not visited
		_, err := m.Writer().AddMethod(classfile.AccStatic, "extra", "()V", &bytecode.Code{
			Insns: []*bytecode.Insn{bytecode.Simple(bytecode.OpReturn)},
		})
		return err
	}
	return nil
}

func (r *recorder) VisitEnd(w *Writer) error {
	r.events = append(r.events, "end "+w.Name())
	return nil
}

func TestAcceptOrder(t *testing.T) {
	w := wrap(t, sampleClass(t))
	r := &recorder{}
	require.NoError(t, w.Accept(r))

	want := []string{
		"field count",
		"method <init>()V",
		"method sign(I)I",
		"end test/Sample",
	}
	if diff := cmp.Diff(want, r.events); diff != "" {
		t.Errorf("visit order mismatch (-want +got):\n%s", diff)
	}
	assert.NotNil(t, w.FindMethod("extra", "()V"))
}

func TestAddMemberDuplicates(t *testing.T) {
	w := wrap(t, sampleClass(t))
	_, err := w.AddField(classfile.AccPublic, "count", "I")
	assert.Error(t, err)
	_, err = w.AddMethod(classfile.AccPublic, "sign", "(I)I", nil)
	assert.Error(t, err)
	_, err = w.AddMethod(classfile.AccPublic, "bad", "I", nil)
	assert.Error(t, err)
}

func TestInterfaceWithAbstractMethods(t *testing.T) {
	w, err := NewClass(classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract, "test/Hook", "")
	require.NoError(t, err)
	_, err = w.AddMethod(classfile.AccPublic|classfile.AccAbstract, "run", "(Ljava/lang/Object;)V", nil)
	require.NoError(t, err)

	b, err := w.Bytes()
	require.NoError(t, err)

	cf, err := classfile.ParseBytes(b)
	require.NoError(t, err)
	m := cf.FindMethod("run", "(Ljava/lang/Object;)V")
	require.NotNil(t, m)
	assert.Nil(t, m.Attribute(classfile.AttrCode))

	_, err = (&Method{w: w, info: *m}).Instructions()
	assert.Error(t, err)
}

func TestFieldSetDescriptor(t *testing.T) {
	w := wrap(t, sampleClass(t))
	f := w.FindField("count", "I")
	require.NotNil(t, f)
	require.NoError(t, f.SetDescriptor("J"))
	f.SetAccess(classfile.AccPublic)

	b, err := w.Bytes()
	require.NoError(t, err)
	cf, err := classfile.ParseBytes(b)
	require.NoError(t, err)
	got := cf.FindField("count", "J")
	require.NotNil(t, got)
	assert.EqualValues(t, classfile.AccPublic, got.AccessFlags)
}

func TestSuperHierarchy(t *testing.T) {
	h := &superHierarchy{name: "a/Child", super: "a/Parent"}
	assert.Equal(t, "a/Parent", h.CommonSuperClass("a/Child", "a/Parent"))
	assert.Equal(t, "a/Parent", h.CommonSuperClass("a/Parent", "a/Child"))
	assert.Equal(t, "java/lang/Object", h.CommonSuperClass("a/Child", "a/Other"))
}

// foreignClass was not produced by this module's encoder: it has a long
// constant, a NaN float, a modified-UTF-8 NUL, a static method without a
// stack map and an unknown class attribute.
var foreignClass = []byte{
	0xCA, 0xFE, 0xBA, 0xBE,
	0x00, 0x00, 0x00, 0x34,
	0x00, 0x0D,
	0x01, 0x00, 0x01, 'A', // #1
	0x07, 0x00, 0x01, // #2
	0x01, 0x00, 0x10, 'j', 'a', 'v', 'a', '/', 'l', 'a', 'n', 'g', '/', 'O', 'b', 'j', 'e', 'c', 't', // #3
	0x07, 0x00, 0x03, // #4
	0x05, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // #5 Long.MIN_VALUE
	0x04, 0xFF, 0xC0, 0x00, 0x00, // #7 Float NaN
	0x01, 0x00, 0x03, 'a', 0xC0, 0x80, // #8
	0x01, 0x00, 0x01, 'm', // #9
	0x01, 0x00, 0x03, '(', ')', 'V', // #10
	0x01, 0x00, 0x04, 'C', 'o', 'd', 'e', // #11
	0x01, 0x00, 0x06, 'C', 'u', 's', 't', 'o', 'm', // #12
	0x00, 0x21,
	0x00, 0x02,
	0x00, 0x04,
	0x00, 0x00,
	0x00, 0x00,
	0x00, 0x01, // methods
	0x00, 0x09, 0x00, 0x09, 0x00, 0x0A, 0x00, 0x01, // public static m()V
	0x00, 0x0B, 0x00, 0x00, 0x00, 0x0D, // Code
	0x00, 0x00, 0x00, 0x00, // max_stack, max_locals
	0x00, 0x00, 0x00, 0x01, 0xB1, // return
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x01,
	0x00, 0x0C, 0x00, 0x00, 0x00, 0x02, 0xBE, 0xEF, // Custom
}

func TestForeignClassRoundTrip(t *testing.T) {
	w := wrap(t, foreignClass)
	out, err := w.Bytes()
	require.NoError(t, err)
	assert.Equal(t, foreignClass, out)

	m := w.FindMethod("m", "()V")
	require.NotNil(t, m)
	code, err := m.Instructions()
	require.NoError(t, err)
	code.Prepend(bytecode.Simple(bytecode.OpNop))

	patched, err := w.Bytes()
	require.NoError(t, err)
	cf, err := classfile.ParseBytes(patched)
	require.NoError(t, err)
	assert.Equal(t, &classfile.ConstantLong{Value: math.MinInt64}, cf.ConstantPool[5])
	assert.Equal(t, &classfile.ConstantFloat{Bits: 0xFFC00000}, cf.ConstantPool[7])
	assert.Equal(t, &classfile.ConstantUtf8{Value: "a\xC0\x80"}, cf.ConstantPool[8])
	attr := cf.Attribute("Custom")
	require.NotNil(t, attr)
	assert.Equal(t, []byte{0xBE, 0xEF}, attr.Data)
	raw, err := cf.FindMethod("m", "()V").Code(cf.ConstantPool)
	require.NoError(t, err)
	assert.Equal(t, []byte{bytecode.OpNop, bytecode.OpReturn}, raw.Code)
}
