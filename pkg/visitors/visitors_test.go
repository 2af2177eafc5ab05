package visitors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/classpatch/internal/worldedittest"
	"github.com/daimatz/classpatch/pkg/bytecode"
	"github.com/daimatz/classpatch/pkg/classfile"
	"github.com/daimatz/classpatch/pkg/classwriter"
)

func load(t *testing.T, b []byte) *classwriter.Writer {
	t.Helper()
	cf, err := classfile.ParseBytes(b)
	require.NoError(t, err)
	w, err := classwriter.New(cf)
	require.NoError(t, err)
	return w
}

func ops(t *testing.T, m *classwriter.Method) []byte {
	t.Helper()
	code, err := m.Peek()
	require.NoError(t, err)
	require.NotNil(t, code)
	var out []byte
	for _, insn := range code.Insns {
		if !insn.IsMark() {
			out = append(out, insn.Op)
		}
	}
	return out
}

// recorder collects the classes handed to a ClassCreator.
type recorder struct {
	names   []string
	writers map[string]*classwriter.Writer
}

func newRecorder() *recorder {
	return &recorder{writers: make(map[string]*classwriter.Writer)}
}

func (r *recorder) create(name string, w *classwriter.Writer) error {
	r.names = append(r.names, name)
	r.writers[name] = w
	return nil
}

type method struct {
	name, desc string
	static     bool
}

// host builds test/Host with the given methods, each returning a default
// value of its return type.
func host(t *testing.T, methods ...method) *classwriter.Writer {
	t.Helper()
	w, err := classwriter.NewClass(classfile.AccPublic|classfile.AccSuper, "test/Host", "")
	require.NoError(t, err)
	for _, m := range methods {
		md, err := classfile.ParseMethodDescriptor(m.desc)
		require.NoError(t, err)
		var insns []*bytecode.Insn
		switch bytecode.ReturnOp(md.Return) {
		case bytecode.OpReturn:
		case bytecode.OpAreturn:
			insns = append(insns, bytecode.Simple(bytecode.OpAconstNull))
		default:
			insns = append(insns, bytecode.Push(0))
		}
		insns = append(insns, bytecode.Simple(bytecode.ReturnOp(md.Return)))

		access := uint16(classfile.AccPublic)
		if m.static {
			access |= classfile.AccStatic
		}
		_, err = w.AddMethod(access, m.name, m.desc, &bytecode.Code{Insns: insns})
		require.NoError(t, err)
	}
	b, err := w.Bytes()
	require.NoError(t, err)
	return load(t, b)
}

func TestPoints(t *testing.T) {
	p := NewPoints("a", "b", "a", "c")
	assert.Equal(t, []string{"a", "b", "c"}, p.Missing())

	p.Hit("b")
	p.Hit("unknown")
	assert.True(t, p.Reached("b"))
	assert.False(t, p.Reached("unknown"))
	assert.Equal(t, []string{"a", "c"}, p.Missing())

	err := p.Validate("x.Y")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "x.Y", verr.Class)
	assert.Equal(t, "class x.Y: patch points not found: a, c", err.Error())

	p.Hit("a")
	p.Hit("c")
	assert.NoError(t, p.Validate("x.Y"))
}

func TestStripFinal(t *testing.T) {
	w, err := classwriter.NewClass(classfile.AccPublic, "test/Host", "")
	require.NoError(t, err)
	_, err = w.AddField(classfile.AccPrivate|classfile.AccFinal, "data", "I")
	require.NoError(t, err)
	_, err = w.AddMethod(classfile.AccPublic|classfile.AccFinal, "run", "()V",
		&bytecode.Code{Insns: []*bytecode.Insn{bytecode.Simple(bytecode.OpReturn)}})
	require.NoError(t, err)

	v := New("test.Host", w, nil,
		StripFinal{Name: "run", Descriptor: "()V"},
		StripFinal{Name: "data", Field: true},
	)
	require.NoError(t, w.Accept(v))
	require.NoError(t, v.Validate())

	assert.EqualValues(t, classfile.AccPublic, w.FindMethod("run", "()V").Access())
	assert.EqualValues(t, classfile.AccPrivate, w.FindField("data", "I").Access())
}

func TestInsertPrefixCall(t *testing.T) {
	t.Run("this and arguments", func(t *testing.T) {
		w := host(t, method{name: "undo", desc: "(Ljava/lang/Object;J)V"})
		v := New("test.Host", w, nil, InsertPrefixCall{
			Name:           "undo",
			Owner:          "test/Hooks",
			Method:         "before",
			HookDescriptor: "(Ljava/lang/Object;Ljava/lang/Object;J)I",
			PassThis:       true,
			PassArgs:       true,
		})
		require.NoError(t, w.Accept(v))
		require.NoError(t, v.Validate())

		b, err := w.Bytes()
		require.NoError(t, err)
		out := load(t, b)
		undo := out.FindMethod("undo", "(Ljava/lang/Object;J)V")
		assert.Equal(t, []byte{
			bytecode.OpAload, bytecode.OpAload, bytecode.OpLload,
			bytecode.OpInvokestatic, bytecode.OpPop,
			bytecode.OpReturn,
		}, ops(t, undo))

		code, err := undo.Peek()
		require.NoError(t, err)
		assert.Equal(t, 0, code.Insns[0].Index)
		assert.Equal(t, 1, code.Insns[1].Index)
		assert.Equal(t, 2, code.Insns[2].Index)
		ref, err := out.ResolveMember(code.Insns[3].Index)
		require.NoError(t, err)
		assert.Equal(t, "test/Hooks", ref.ClassName)
		assert.Equal(t, "before", ref.Name)
		assert.EqualValues(t, 4, code.MaxStack)
	})

	t.Run("receiver of a static method", func(t *testing.T) {
		w := host(t, method{name: "reset", desc: "()V", static: true})
		v := New("test.Host", w, nil, InsertPrefixCall{
			Name:           "reset",
			Owner:          "test/Hooks",
			Method:         "before",
			HookDescriptor: "(Ljava/lang/Object;)V",
			PassThis:       true,
		})
		err := w.Accept(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no initialized receiver")
	})
}

func TestRedirectCall(t *testing.T) {
	newHost := func(t *testing.T) *classwriter.Writer {
		w, err := classwriter.NewClass(classfile.AccPublic, "test/Host", "")
		require.NoError(t, err)
		target, err := w.Pool().Methodref("test/Other", "go", "(I)V")
		require.NoError(t, err)
		other, err := w.Pool().Methodref("test/Other", "stop", "()V")
		require.NoError(t, err)
		_, err = w.AddMethod(classfile.AccPublic, "run", "(Ltest/Other;)V", &bytecode.Code{Insns: []*bytecode.Insn{
			bytecode.WithIndex(bytecode.OpAload, 1),
			bytecode.Push(7),
			bytecode.WithIndex(bytecode.OpInvokevirtual, int(target)),
			bytecode.WithIndex(bytecode.OpAload, 1),
			bytecode.WithIndex(bytecode.OpInvokevirtual, int(other)),
			bytecode.Simple(bytecode.OpReturn),
		}})
		require.NoError(t, err)
		_, err = w.AddMethod(classfile.AccPublic, "idle", "()V",
			&bytecode.Code{Insns: []*bytecode.Insn{bytecode.Simple(bytecode.OpReturn)}})
		require.NoError(t, err)
		b, err := w.Bytes()
		require.NoError(t, err)
		return load(t, b)
	}

	t.Run("call sites are replaced", func(t *testing.T) {
		w := newHost(t)
		v := New("test.Host", w, nil, RedirectCall{
			Name:     "run",
			Owner:    "test/Other",
			Method:   "go",
			ToOwner:  "test/Hooks",
			ToMethod: "go",
		})
		require.NoError(t, w.Accept(v))
		require.NoError(t, v.Validate())

		b, err := w.Bytes()
		require.NoError(t, err)
		out := load(t, b)
		code, err := out.FindMethod("run", "(Ltest/Other;)V").Peek()
		require.NoError(t, err)

		var calls []*classfile.MemberRef
		for _, insn := range code.Insns {
			if insn.Op == bytecode.OpInvokestatic || insn.Op == bytecode.OpInvokevirtual {
				ref, err := out.ResolveMember(insn.Index)
				require.NoError(t, err)
				calls = append(calls, ref)
			}
		}
		require.Len(t, calls, 2)
		assert.Equal(t, "test/Hooks", calls[0].ClassName)
		assert.Equal(t, "(Ltest/Other;I)V", calls[0].Descriptor)
		assert.Equal(t, "test/Other", calls[1].ClassName)
		assert.Equal(t, "stop", calls[1].Name)
	})

	t.Run("no call site leaves the body alone", func(t *testing.T) {
		w := newHost(t)
		v := New("test.Host", w, nil, RedirectCall{
			Name:     "idle",
			Owner:    "test/Other",
			Method:   "go",
			ToOwner:  "test/Hooks",
			ToMethod: "go",
		})
		require.NoError(t, w.Accept(v))
		assert.False(t, w.FindMethod("idle", "()V").Modified())

		var verr *ValidationError
		require.ErrorAs(t, v.Validate(), &verr)
		assert.Len(t, verr.Missing, 1)
	})
}

func TestRetypeField(t *testing.T) {
	w, err := classwriter.NewClass(classfile.AccPublic, "test/Host", "")
	require.NoError(t, err)
	_, err = w.AddField(classfile.AccPrivate, "names", "[Ljava/lang/String;")
	require.NoError(t, err)
	ref, err := w.Pool().Fieldref("test/Host", "names", "[Ljava/lang/String;")
	require.NoError(t, err)
	_, err = w.AddMethod(classfile.AccPublic, "names", "()[Ljava/lang/String;", &bytecode.Code{Insns: []*bytecode.Insn{
		bytecode.WithIndex(bytecode.OpAload, 0),
		bytecode.WithIndex(bytecode.OpGetfield, int(ref)),
		bytecode.Simple(bytecode.OpAreturn),
	}})
	require.NoError(t, err)
	_, err = w.AddMethod(classfile.AccPublic, "clear", "()V", &bytecode.Code{Insns: []*bytecode.Insn{
		bytecode.WithIndex(bytecode.OpAload, 0),
		bytecode.Simple(bytecode.OpAconstNull),
		bytecode.WithIndex(bytecode.OpPutfield, int(ref)),
		bytecode.Simple(bytecode.OpReturn),
	}})
	require.NoError(t, err)
	b, err := w.Bytes()
	require.NoError(t, err)
	w = load(t, b)

	v := New("test.Host", w, nil, RetypeField{
		Name:          "names",
		Descriptor:    "[Ljava/lang/String;",
		NewDescriptor: "Ljava/lang/Object;",
	})
	require.NoError(t, w.Accept(v))
	require.NoError(t, v.Validate())

	b, err = w.Bytes()
	require.NoError(t, err)
	out := load(t, b)
	require.NotNil(t, out.FindField("names", "Ljava/lang/Object;"))
	assert.Nil(t, out.FindField("names", "[Ljava/lang/String;"))

	names := out.FindMethod("names", "()[Ljava/lang/String;")
	assert.Equal(t, []byte{bytecode.OpAload, bytecode.OpGetfield, bytecode.OpCheckcast, bytecode.OpAreturn}, ops(t, names))
	code, err := names.Peek()
	require.NoError(t, err)
	got, err := out.ResolveMember(code.Insns[1].Index)
	require.NoError(t, err)
	assert.Equal(t, "Ljava/lang/Object;", got.Descriptor)

	reset := out.FindMethod("clear", "()V")
	assert.Equal(t, []byte{bytecode.OpAload, bytecode.OpAconstNull, bytecode.OpPutfield, bytecode.OpReturn}, ops(t, reset))

	t.Run("primitive fields are rejected", func(t *testing.T) {
		w, err := classwriter.NewClass(classfile.AccPublic, "test/Host", "")
		require.NoError(t, err)
		_, err = w.AddField(classfile.AccPrivate, "count", "I")
		require.NoError(t, err)
		v := New("test.Host", w, nil, RetypeField{Name: "count", Descriptor: "I", NewDescriptor: "J"})
		assert.Error(t, w.Accept(v))
	})
}

func TestDelegateToHook(t *testing.T) {
	w := host(t,
		method{name: "mix", desc: "(IJ)I", static: true},
		method{name: "name", desc: "()Ljava/lang/String;"},
	)
	rec := newRecorder()
	v := New("test.Host", w, rec.create,
		DelegateToHook{Name: "mix", Descriptor: "(IJ)I", Hook: "test/IHostHook", Field: "hook"},
		DelegateToHook{Name: "name", Descriptor: "()Ljava/lang/String;", Hook: "test/IHostHook", Field: "hook"},
	)
	require.NoError(t, w.Accept(v))
	require.NoError(t, v.Validate())

	field := w.FindField("hook", "Ltest/IHostHook;")
	require.NotNil(t, field)
	assert.EqualValues(t, classfile.AccPublic|classfile.AccStatic|classfile.AccVolatile, field.Access())

	require.Equal(t, []string{"test.IHostHook"}, rec.names)
	hook := rec.writers["test.IHostHook"]
	assert.Equal(t, "test/IHostHook", hook.Name())
	assert.NotZero(t, hook.Access()&classfile.AccInterface)
	require.Len(t, hook.Methods(), 2)
	assert.Equal(t, "(IJ)I", hook.Methods()[0].Descriptor())
	assert.Equal(t, "(Ltest/Host;)Ljava/lang/String;", hook.Methods()[1].Descriptor())
	for _, m := range hook.Methods() {
		assert.False(t, m.HasCode())
		assert.NotZero(t, m.Access()&classfile.AccAbstract)
	}
	_, err := hook.Bytes()
	require.NoError(t, err)

	b, err := w.Bytes()
	require.NoError(t, err)
	out := load(t, b)

	assert.Equal(t, []byte{
		bytecode.OpGetstatic, bytecode.OpIfnull, bytecode.OpGetstatic,
		bytecode.OpIload, bytecode.OpLload, bytecode.OpInvokeinterface, bytecode.OpIreturn,
		bytecode.OpIconst0, bytecode.OpIreturn,
	}, ops(t, out.FindMethod("mix", "(IJ)I")))

	name := out.FindMethod("name", "()Ljava/lang/String;")
	assert.Equal(t, []byte{
		bytecode.OpGetstatic, bytecode.OpIfnull, bytecode.OpGetstatic,
		bytecode.OpAload, bytecode.OpInvokeinterface, bytecode.OpAreturn,
		bytecode.OpAconstNull, bytecode.OpAreturn,
	}, ops(t, name))

	code, err := name.Peek()
	require.NoError(t, err)
	call := code.Insns[4]
	assert.Equal(t, 2, call.Const)
	ref, err := out.ResolveMember(call.Index)
	require.NoError(t, err)
	assert.Equal(t, "test/IHostHook", ref.ClassName)
	assert.Equal(t, "(Ltest/Host;)Ljava/lang/String;", ref.Descriptor)
}

func TestDelegateToHookNeedsCreator(t *testing.T) {
	w := host(t, method{name: "name", desc: "()Ljava/lang/String;"})
	v := New("test.Host", w, nil,
		DelegateToHook{Name: "name", Descriptor: "()Ljava/lang/String;", Hook: "test/IHostHook", Field: "hook"})
	assert.Error(t, w.Accept(v))
}

func TestDelegateToHookCreatorError(t *testing.T) {
	w := host(t, method{name: "name", desc: "()Ljava/lang/String;"})
	boom := errors.New("boom")
	v := New("test.Host", w, func(string, *classwriter.Writer) error { return boom },
		DelegateToHook{Name: "name", Descriptor: "()Ljava/lang/String;", Hook: "test/IHostHook", Field: "hook"})
	assert.ErrorIs(t, w.Accept(v), boom)
}

type factory func(*classwriter.Writer, classwriter.ClassCreator) *Visitor

var worldEdit = []struct {
	class string
	new   factory
	hooks []string
}{
	{EditSessionClass, NewEditSession, []string{"org.primesoft.asyncworldedit.injector.hooks.IEditSessionHook"}},
	{OperationsClass, NewOperations, []string{"org.primesoft.asyncworldedit.injector.hooks.IOperationsHook"}},
	{ForwardExtentCopyClass, NewForwardExtentCopy, nil},
	{BlockArrayClipboardClass, NewBlockArrayClipboard, []string{"org.primesoft.asyncworldedit.injector.hooks.IBlockArrayClipboardHook"}},
	{FlattenedClipboardTransformClass, NewFlattenedClipboardTransform, []string{"org.primesoft.asyncworldedit.injector.hooks.IFlattenedClipboardTransformHook"}},
	{SnapshotUtilCommandsClass, NewSnapshotUtilCommands, []string{"org.primesoft.asyncworldedit.injector.hooks.ISnapshotUtilCommandsHook"}},
}

func TestWorldEditVisitors(t *testing.T) {
	for _, tc := range worldEdit {
		t.Run(tc.class, func(t *testing.T) {
			w := load(t, worldedittest.MustBuild(tc.class))
			rec := newRecorder()
			v := tc.new(w, rec.create)
			assert.Equal(t, tc.class, v.Class())

			require.NoError(t, w.Accept(v))
			require.NoError(t, v.Validate())
			assert.Equal(t, tc.hooks, rec.names)

			b, err := w.Bytes()
			require.NoError(t, err)
			out := load(t, b)
			assert.Equal(t, classfile.InternalName(tc.class), out.Name())

			// the constructor never matches a rule
			ctor := w.FindMethod("<init>", "()V")
			require.NotNil(t, ctor)
			assert.False(t, ctor.Modified())
			for _, hw := range rec.writers {
				_, err := hw.Bytes()
				require.NoError(t, err)
			}
		})
	}
}

func TestWorldEditMissingPoint(t *testing.T) {
	w := load(t, worldedittest.MustBuild(BlockArrayClipboardClass, "setBlock"))
	rec := newRecorder()
	v := NewBlockArrayClipboard(w, rec.create)
	require.NoError(t, w.Accept(v))

	err := v.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, BlockArrayClipboardClass, verr.Class)
	require.Len(t, verr.Missing, 1)
	assert.Contains(t, verr.Missing[0], "setBlock")
	assert.Empty(t, rec.names)
}

func TestWorldEditUnrelatedClass(t *testing.T) {
	b := worldedittest.MustBuild(SnapshotUtilCommandsClass)
	w := load(t, b)
	v := NewEditSession(w, newRecorder().create)
	require.NoError(t, w.Accept(v))

	var verr *ValidationError
	require.ErrorAs(t, v.Validate(), &verr)
	assert.Len(t, verr.Missing, 3)

	out, err := w.Bytes()
	require.NoError(t, err)
	assert.Equal(t, b, out)
}
