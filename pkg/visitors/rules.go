package visitors

import (
	"fmt"
	"strings"

	"github.com/daimatz/classpatch/pkg/bytecode"
	"github.com/daimatz/classpatch/pkg/classfile"
	"github.com/daimatz/classpatch/pkg/classwriter"
)

// Rule rewrites one member of a class. Each rule is one patch point.
type Rule interface {
	Point() string
}

type methodRule interface {
	Rule
	applyMethod(v *Visitor, m *classwriter.Method) (bool, error)
}

type fieldRule interface {
	Rule
	applyField(v *Visitor, f *classwriter.Field) (bool, error)
}

func matches(name, desc, gotName, gotDesc string) bool {
	return name == gotName && (desc == "" || desc == gotDesc)
}

// StripFinal clears ACC_FINAL on a method, or on a field when Field is set.
type StripFinal struct {
	Name       string
	Descriptor string
	Field      bool
}

func (r StripFinal) Point() string {
	if r.Field {
		return "strip final field " + r.Name + " " + r.Descriptor
	}
	return "strip final " + r.Name + r.Descriptor
}

func (r StripFinal) applyMethod(v *Visitor, m *classwriter.Method) (bool, error) {
	if r.Field || !matches(r.Name, r.Descriptor, m.Name(), m.Descriptor()) {
		return false, nil
	}
	m.SetAccess(m.Access() &^ classfile.AccFinal)
	return true, nil
}

func (r StripFinal) applyField(v *Visitor, f *classwriter.Field) (bool, error) {
	if !r.Field || !matches(r.Name, r.Descriptor, f.Name(), f.Descriptor()) {
		return false, nil
	}
	f.SetAccess(f.Access() &^ classfile.AccFinal)
	return true, nil
}

// InsertPrefixCall makes a method call a static hook before its original
// body runs. The hook receives the receiver when PassThis is set and the
// method arguments when PassArgs is set; a hook result is discarded.
type InsertPrefixCall struct {
	Name       string
	Descriptor string

	Owner          string
	Method         string
	HookDescriptor string
	PassThis       bool
	PassArgs       bool
}

func (r InsertPrefixCall) Point() string {
	return "prefix " + r.Name + r.Descriptor + " with " + r.Owner + "." + r.Method
}

func (r InsertPrefixCall) applyMethod(v *Visitor, m *classwriter.Method) (bool, error) {
	if !matches(r.Name, r.Descriptor, m.Name(), m.Descriptor()) || !m.HasCode() {
		return false, nil
	}
	if r.PassThis && (m.IsStatic() || m.Name() == "<init>") {
		return false, fmt.Errorf("%s%s has no initialized receiver to pass", m.Name(), m.Descriptor())
	}
	md, err := classfile.ParseMethodDescriptor(m.Descriptor())
	if err != nil {
		return false, err
	}
	hook, err := classfile.ParseMethodDescriptor(r.HookDescriptor)
	if err != nil {
		return false, err
	}
	code, err := m.Instructions()
	if err != nil {
		return false, err
	}
	ref, err := m.Writer().Pool().Methodref(r.Owner, r.Method, r.HookDescriptor)
	if err != nil {
		return false, err
	}

	var prologue []*bytecode.Insn
	first := 0
	if !m.IsStatic() {
		first = 1
	}
	if r.PassThis {
		prologue = append(prologue, bytecode.WithIndex(bytecode.OpAload, 0))
	}
	if r.PassArgs {
		prologue = append(prologue, bytecode.LoadArgs(md, first)...)
	}
	prologue = append(prologue, bytecode.WithIndex(bytecode.OpInvokestatic, int(ref)))
	switch classfile.SlotSize(hook.Return) {
	case 1:
		prologue = append(prologue, bytecode.Simple(bytecode.OpPop))
	case 2:
		prologue = append(prologue, bytecode.Simple(bytecode.OpPop2))
	}
	code.Prepend(prologue...)
	return true, nil
}

// RedirectCall replaces, inside one method, every invocation of
// Owner.Method with a call to the static ToOwner.ToMethod. For instance
// methods the receiver becomes the first argument of the replacement.
type RedirectCall struct {
	Name       string
	Descriptor string

	Owner            string
	Method           string
	MethodDescriptor string

	ToOwner      string
	ToMethod     string
	ToDescriptor string
}

func (r RedirectCall) Point() string {
	return "redirect " + r.Owner + "." + r.Method + " in " + r.Name + r.Descriptor
}

func (r RedirectCall) applyMethod(v *Visitor, m *classwriter.Method) (bool, error) {
	if !matches(r.Name, r.Descriptor, m.Name(), m.Descriptor()) || !m.HasCode() {
		return false, nil
	}
	w := m.Writer()
	peek, err := m.Peek()
	if err != nil {
		return false, err
	}
	sites, err := r.callSites(w, peek)
	if err != nil || len(sites) == 0 {
		return false, err
	}

	code, err := m.Instructions()
	if err != nil {
		return false, err
	}
	if code != peek {
		if sites, err = r.callSites(w, code); err != nil {
			return false, err
		}
	}
	for _, insn := range sites {
		ref, err := w.ResolveMember(insn.Index)
		if err != nil {
			return false, err
		}
		desc := r.ToDescriptor
		if desc == "" {
			desc = ref.Descriptor
			if insn.Op != bytecode.OpInvokestatic {
				desc = "(" + classfile.ObjectDescriptor(ref.ClassName) + desc[1:]
			}
		}
		idx, err := w.Pool().Methodref(r.ToOwner, r.ToMethod, desc)
		if err != nil {
			return false, err
		}
		insn.Op = bytecode.OpInvokestatic
		insn.Index = int(idx)
		insn.Const = 0
	}
	return true, nil
}

func (r RedirectCall) callSites(w *classwriter.Writer, code *bytecode.Code) ([]*bytecode.Insn, error) {
	var sites []*bytecode.Insn
	for _, insn := range code.Insns {
		if insn.IsMark() {
			continue
		}
		switch insn.Op {
		case bytecode.OpInvokevirtual, bytecode.OpInvokestatic, bytecode.OpInvokeinterface:
		default:
			continue
		}
		ref, err := w.ResolveMember(insn.Index)
		if err != nil {
			return nil, err
		}
		if ref.ClassName == r.Owner && matches(r.Method, r.MethodDescriptor, ref.Name, ref.Descriptor) {
			sites = append(sites, insn)
		}
	}
	return sites, nil
}

// RetypeField changes the declared type of a reference field. Reads of
// the field inside the class are followed by a checkcast to the old
// type so existing code keeps verifying.
type RetypeField struct {
	Name          string
	Descriptor    string
	NewDescriptor string
}

func (r RetypeField) Point() string {
	return "retype field " + r.Name + " " + r.Descriptor + " to " + r.NewDescriptor
}

func (r RetypeField) applyField(v *Visitor, f *classwriter.Field) (bool, error) {
	if f.Name() != r.Name || f.Descriptor() != r.Descriptor {
		return false, nil
	}
	if !isReference(r.Descriptor) || !isReference(r.NewDescriptor) {
		return false, fmt.Errorf("field %s: only reference fields can be retyped", r.Name)
	}
	if err := f.SetDescriptor(r.NewDescriptor); err != nil {
		return false, err
	}
	v.retyped = append(v.retyped, r)
	return true, nil
}

func isReference(desc string) bool {
	return strings.HasPrefix(desc, "L") || strings.HasPrefix(desc, "[")
}

// rewriteAccesses points every access to the field at the new descriptor.
func (r RetypeField) rewriteAccesses(w *classwriter.Writer) error {
	newRef, err := w.Pool().Fieldref(w.Name(), r.Name, r.NewDescriptor)
	if err != nil {
		return err
	}
	oldType := strings.TrimSuffix(strings.TrimPrefix(r.Descriptor, "L"), ";")
	if strings.HasPrefix(r.Descriptor, "[") {
		oldType = r.Descriptor
	}
	cast, err := w.Pool().Class(oldType)
	if err != nil {
		return err
	}

	for _, m := range w.Methods() {
		if !m.HasCode() {
			continue
		}
		peek, err := m.Peek()
		if err != nil {
			return err
		}
		n, err := r.accesses(w, peek)
		if err != nil {
			return fmt.Errorf("%s%s: %w", m.Name(), m.Descriptor(), err)
		}
		if n == 0 {
			continue
		}

		code, err := m.Instructions()
		if err != nil {
			return err
		}
		var reads []*bytecode.Insn
		for _, insn := range code.Insns {
			if insn.IsMark() || insn.Op < bytecode.OpGetstatic || insn.Op > bytecode.OpPutfield {
				continue
			}
			if insn.Index == int(newRef) {
				continue
			}
			ref, err := w.ResolveMember(insn.Index)
			if err != nil {
				return err
			}
			if ref.ClassName != w.Name() || ref.Name != r.Name || ref.Descriptor != r.Descriptor {
				continue
			}
			insn.Index = int(newRef)
			if insn.Op == bytecode.OpGetstatic || insn.Op == bytecode.OpGetfield {
				reads = append(reads, insn)
			}
		}
		for _, insn := range reads {
			code.InsertAfter(insn, bytecode.WithIndex(bytecode.OpCheckcast, int(cast)))
		}
	}
	return nil
}

func (r RetypeField) accesses(w *classwriter.Writer, code *bytecode.Code) (int, error) {
	n := 0
	for _, insn := range code.Insns {
		if insn.IsMark() || insn.Op < bytecode.OpGetstatic || insn.Op > bytecode.OpPutfield {
			continue
		}
		ref, err := w.ResolveMember(insn.Index)
		if err != nil {
			return 0, err
		}
		if ref.ClassName == w.Name() && ref.Name == r.Name && ref.Descriptor == r.Descriptor {
			n++
		}
	}
	return n, nil
}

// DelegateToHook adds a public static field holding an implementation of
// the Hook interface and a prologue that forwards the call to it whenever
// the field is set. The Hook interface itself is synthesized through the
// class creator once every patch point of the visitor was reached.
//
// The hook method has the name of the patched method. Instance methods
// pass the receiver as the first hook argument.
type DelegateToHook struct {
	Name       string
	Descriptor string

	Hook  string
	Field string
}

func (r DelegateToHook) Point() string {
	return "delegate " + r.Name + r.Descriptor + " to " + r.Hook
}

// HookDescriptor returns the descriptor of the hook interface method for
// a method of owner.
func (r DelegateToHook) HookDescriptor(owner string, static bool) string {
	if static {
		return r.Descriptor
	}
	return "(" + classfile.ObjectDescriptor(owner) + r.Descriptor[1:]
}

func (r DelegateToHook) applyMethod(v *Visitor, m *classwriter.Method) (bool, error) {
	if m.Name() != r.Name || m.Descriptor() != r.Descriptor || !m.HasCode() {
		return false, nil
	}
	if strings.HasPrefix(m.Name(), "<") {
		return false, fmt.Errorf("cannot delegate %s to a hook", m.Name())
	}
	w := m.Writer()
	hookDesc := r.HookDescriptor(w.Name(), m.IsStatic())
	hookMD, err := classfile.ParseMethodDescriptor(hookDesc)
	if err != nil {
		return false, err
	}

	fieldDesc := classfile.ObjectDescriptor(r.Hook)
	if w.FindField(r.Field, fieldDesc) == nil {
		if _, err := w.AddField(classfile.AccPublic|classfile.AccStatic|classfile.AccVolatile, r.Field, fieldDesc); err != nil {
			return false, err
		}
	}
	field, err := w.Pool().Fieldref(w.Name(), r.Field, fieldDesc)
	if err != nil {
		return false, err
	}
	call, err := w.Pool().InterfaceMethodref(r.Hook, r.Name, hookDesc)
	if err != nil {
		return false, err
	}

	code, err := m.Instructions()
	if err != nil {
		return false, err
	}
	original := bytecode.NewLabel()
	prologue := []*bytecode.Insn{
		bytecode.WithIndex(bytecode.OpGetstatic, int(field)),
		bytecode.Jump(bytecode.OpIfnull, original),
		bytecode.WithIndex(bytecode.OpGetstatic, int(field)),
	}
	prologue = append(prologue, bytecode.LoadArgs(hookMD, 0)...)
	prologue = append(prologue,
		&bytecode.Insn{Op: bytecode.OpInvokeinterface, Index: int(call), Const: 1 + hookMD.ArgumentSlots()},
		bytecode.Simple(bytecode.ReturnOp(hookMD.Return)),
		bytecode.Mark(original),
	)
	code.Prepend(prologue...)

	v.addHookMethod(r.Hook, r.Name, hookDesc)
	return true, nil
}
