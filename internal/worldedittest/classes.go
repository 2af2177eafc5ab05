// Package worldedittest synthesizes minimal stand-ins for the WorldEdit
// classes that the injector patches. Each class declares exactly the
// members the matching visitor looks for, with trivial bodies.
package worldedittest

import (
	"fmt"
	"sort"

	"github.com/daimatz/classpatch/pkg/bytecode"
	"github.com/daimatz/classpatch/pkg/classfile"
	"github.com/daimatz/classpatch/pkg/classwriter"
)

const (
	operation   = "Lcom/sk89q/worldedit/function/operation/Operation;"
	blockVector = "Lcom/sk89q/worldedit/math/BlockVector3;"
)

type member struct {
	name   string
	field  bool
	access uint16
	desc   string
	// body emits the method code. nil for fields.
	body func(w *classwriter.Writer) ([]*bytecode.Insn, error)
}

func returnNull(*classwriter.Writer) ([]*bytecode.Insn, error) {
	return []*bytecode.Insn{bytecode.Simple(bytecode.OpAconstNull), bytecode.Simple(bytecode.OpAreturn)}, nil
}

func returnVoid(*classwriter.Writer) ([]*bytecode.Insn, error) {
	return []*bytecode.Insn{bytecode.Simple(bytecode.OpReturn)}, nil
}

func returnFalse(*classwriter.Writer) ([]*bytecode.Insn, error) {
	return []*bytecode.Insn{bytecode.Push(0), bytecode.Simple(bytecode.OpIreturn)}, nil
}

var classes = map[string][]member{
	"com/sk89q/worldedit/EditSession": {
		{name: "flushSession", access: classfile.AccPublic, desc: "()V", body: returnVoid},
		{name: "getChangeSet", access: classfile.AccPublic | classfile.AccFinal,
			desc: "()Lcom/sk89q/worldedit/history/changeset/ChangeSet;", body: returnNull},
		{name: "undo", access: classfile.AccPublic, desc: "(Lcom/sk89q/worldedit/EditSession;)V", body: returnVoid},
	},
	"com/sk89q/worldedit/function/operation/Operations": {
		{name: "complete", access: classfile.AccPublic | classfile.AccStatic, desc: "(" + operation + ")V", body: returnVoid},
		{name: "completeLegacy", access: classfile.AccPublic | classfile.AccStatic, desc: "(" + operation + ")V", body: returnVoid},
		{name: "completeBlindly", access: classfile.AccPublic | classfile.AccStatic, desc: "(" + operation + ")V", body: returnVoid},
	},
	"com/sk89q/worldedit/function/operation/ForwardExtentCopy": {
		{name: "resume", access: classfile.AccPublic,
			desc: "(Lcom/sk89q/worldedit/function/operation/RunContext;)" + operation,
			body: func(w *classwriter.Writer) ([]*bytecode.Insn, error) {
				ref, err := w.Pool().Methodref("com/sk89q/worldedit/function/operation/Operations", "completeBlindly", "("+operation+")V")
				if err != nil {
					return nil, err
				}
				return []*bytecode.Insn{
					bytecode.Simple(bytecode.OpAconstNull),
					bytecode.WithIndex(bytecode.OpInvokestatic, int(ref)),
					bytecode.Simple(bytecode.OpAconstNull),
					bytecode.Simple(bytecode.OpAreturn),
				}, nil
			}},
	},
	"com/sk89q/worldedit/extent/clipboard/BlockArrayClipboard": {
		{name: "blocks", field: true, access: classfile.AccPrivate | classfile.AccFinal,
			desc: "[[[Lcom/sk89q/worldedit/world/block/BaseBlock;"},
		{name: "getBlock", access: classfile.AccPublic,
			desc: "(" + blockVector + ")Lcom/sk89q/worldedit/world/block/BlockState;",
			body: func(w *classwriter.Writer) ([]*bytecode.Insn, error) {
				ref, err := w.Pool().Fieldref(w.Name(), "blocks", "[[[Lcom/sk89q/worldedit/world/block/BaseBlock;")
				if err != nil {
					return nil, err
				}
				return []*bytecode.Insn{
					bytecode.WithIndex(bytecode.OpAload, 0),
					bytecode.WithIndex(bytecode.OpGetfield, int(ref)),
					bytecode.Simple(bytecode.OpPop),
					bytecode.Simple(bytecode.OpAconstNull),
					bytecode.Simple(bytecode.OpAreturn),
				}, nil
			}},
		{name: "setBlock", access: classfile.AccPublic,
			desc: "(" + blockVector + "Lcom/sk89q/worldedit/world/block/BlockStateHolder;)Z", body: returnFalse},
	},
	"com/sk89q/worldedit/command/FlattenedClipboardTransform": {
		{name: "getTransformedRegion", access: classfile.AccPublic, desc: "()Lcom/sk89q/worldedit/regions/Region;", body: returnNull},
		{name: "transform", access: classfile.AccPublic | classfile.AccStatic | classfile.AccFinal,
			desc: "(Lcom/sk89q/worldedit/extent/clipboard/Clipboard;Lcom/sk89q/worldedit/math/transform/Transform;)" +
				"Lcom/sk89q/worldedit/command/FlattenedClipboardTransform;",
			body: returnNull},
	},
	"com/sk89q/worldedit/command/SnapshotUtilCommands": {
		{name: "restore", access: classfile.AccPublic,
			desc: "(Lcom/sk89q/worldedit/entity/Player;Lcom/sk89q/worldedit/LocalSession;" +
				"Lcom/sk89q/worldedit/EditSession;Ljava/lang/String;)V",
			body: returnVoid},
	},
}

// Names returns the binary names of every class this package can build.
func Names() []string {
	names := make([]string, 0, len(classes))
	for n := range classes {
		names = append(names, classfile.BinaryName(n))
	}
	sort.Strings(names)
	return names
}

// Build returns the serialized stand-in for the class with the given
// binary name. Members named in omit are left out, which is how tests
// simulate a host version that no longer matches.
func Build(binaryName string, omit ...string) ([]byte, error) {
	name := classfile.InternalName(binaryName)
	members, ok := classes[name]
	if !ok {
		return nil, fmt.Errorf("no stand-in for class %s", binaryName)
	}
	skip := make(map[string]bool, len(omit))
	for _, o := range omit {
		skip[o] = true
	}

	w, err := classwriter.NewClass(classfile.AccPublic|classfile.AccSuper, name, "")
	if err != nil {
		return nil, err
	}
	if err := addConstructor(w); err != nil {
		return nil, err
	}
	for _, m := range members {
		if skip[m.name] {
			continue
		}
		if m.field {
			if _, err := w.AddField(m.access, m.name, m.desc); err != nil {
				return nil, err
			}
			continue
		}
		insns, err := m.body(w)
		if err != nil {
			return nil, err
		}
		if _, err := w.AddMethod(m.access, m.name, m.desc, &bytecode.Code{Insns: insns}); err != nil {
			return nil, err
		}
	}
	return w.Bytes()
}

// MustBuild is like Build but panics on error.
func MustBuild(binaryName string, omit ...string) []byte {
	b, err := Build(binaryName, omit...)
	if err != nil {
		panic(err)
	}
	return b
}

func addConstructor(w *classwriter.Writer) error {
	super, err := w.Pool().Methodref("java/lang/Object", "<init>", "()V")
	if err != nil {
		return err
	}
	_, err = w.AddMethod(classfile.AccPublic, "<init>", "()V", &bytecode.Code{Insns: []*bytecode.Insn{
		bytecode.WithIndex(bytecode.OpAload, 0),
		bytecode.WithIndex(bytecode.OpInvokespecial, int(super)),
		bytecode.Simple(bytecode.OpReturn),
	}})
	return err
}
