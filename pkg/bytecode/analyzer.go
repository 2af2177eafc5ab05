package bytecode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/daimatz/classpatch/pkg/classfile"
)

// ErrJsrWithFrames is returned when a method that needs stack map frames
// uses jsr or ret.
var ErrJsrWithFrames = errors.New("jsr/ret cannot be used in classes with stack map frames")

// Hierarchy resolves the common superclass of two classes when two
// reference types meet at a merge point.
type Hierarchy interface {
	CommonSuperClass(a, b string) string
}

// ObjectHierarchy answers java/lang/Object for every pair of distinct classes.
type ObjectHierarchy struct{}

func (ObjectHierarchy) CommonSuperClass(a, b string) string {
	return "java/lang/Object"
}

// Env describes the method being analyzed.
type Env struct {
	Pool         *classfile.Pool
	Owner        string
	Access       uint16
	Name         string
	Descriptor   string
	MajorVersion uint16
	Hierarchy    Hierarchy
}

// NeedsFrames reports whether the class version requires a StackMapTable.
func (e Env) NeedsFrames() bool {
	return e.MajorVersion >= 50
}

// Analysis is the result of Analyze.
type Analysis struct {
	MaxStack  int
	MaxLocals int
	// Frames[i] is the state before c.Insns[i], or nil if the instruction is
	// unreachable or the entry is a label marker.
	Frames []*Frame
	// NeedFrame marks instructions that start a basic block.
	NeedFrame []bool
}

// Reachable reports whether c.Insns[i] can be executed.
func (a *Analysis) Reachable(i int) bool {
	return a.Frames[i] != nil
}

type analyzer struct {
	code      *Code
	env       Env
	pool      []classfile.ConstantPoolEntry
	hierarchy Hierarchy

	// first[l] is the index of the first real instruction at or after the
	// marker of l, or len(code.Insns) when none follows.
	first    map[*Label]int
	markers  map[*Label]int
	handlers [][]*Handler

	frames    []*Frame
	queued    []bool
	work      []int
	maxStack  int
	maxLocals int
}

// Analyze computes the maximum stack depth, the number of local variable
// slots and the frame at every reachable instruction by abstract
// interpretation over verification types.
func Analyze(c *Code, env Env) (result *Analysis, err error) {
	if env.Pool == nil {
		return nil, fmt.Errorf("analyzing %s%s: no constant pool", env.Name, env.Descriptor)
	}
	a := &analyzer{
		code:      c,
		env:       env,
		pool:      env.Pool.Entries(),
		hierarchy: env.Hierarchy,
		first:     make(map[*Label]int),
		markers:   make(map[*Label]int),
		frames:    make([]*Frame, len(c.Insns)),
		queued:    make([]bool, len(c.Insns)),
	}
	if a.hierarchy == nil {
		a.hierarchy = ObjectHierarchy{}
	}

	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(frameError)
			if !ok {
				panic(r)
			}
			result, err = nil, fmt.Errorf("analyzing %s%s: %w", env.Name, env.Descriptor, fe)
		}
	}()

	if err := a.index(); err != nil {
		return nil, fmt.Errorf("analyzing %s%s: %w", env.Name, env.Descriptor, err)
	}
	if err := a.run(); err != nil {
		return nil, fmt.Errorf("analyzing %s%s: %w", env.Name, env.Descriptor, err)
	}
	return &Analysis{
		MaxStack:  a.maxStack,
		MaxLocals: a.maxLocals,
		Frames:    a.frames,
		NeedFrame: a.blockStarts(),
	}, nil
}

func (a *analyzer) index() error {
	insns := a.code.Insns
	next := len(insns)
	for i := len(insns) - 1; i >= 0; i-- {
		if insns[i].IsMark() {
			if _, dup := a.markers[insns[i].Mark]; dup {
				return fmt.Errorf("label placed twice")
			}
			a.markers[insns[i].Mark] = i
			a.first[insns[i].Mark] = next
		} else {
			next = i
		}
	}

	a.handlers = make([][]*Handler, len(insns))
	for _, h := range a.code.Handlers {
		start, ok1 := a.markers[h.Start]
		end, ok2 := a.markers[h.End]
		_, ok3 := a.markers[h.Handler]
		if !ok1 || !ok2 || !ok3 {
			return fmt.Errorf("exception handler refers to a label that is not placed")
		}
		for i := start; i < end; i++ {
			if !insns[i].IsMark() {
				a.handlers[i] = append(a.handlers[i], h)
			}
		}
	}
	return nil
}

func (a *analyzer) target(l *Label) (int, error) {
	i, ok := a.first[l]
	if !ok {
		return 0, fmt.Errorf("branch to a label that is not placed")
	}
	if i >= len(a.code.Insns) {
		return 0, fmt.Errorf("branch past the end of the code")
	}
	return i, nil
}

func (a *analyzer) run() error {
	md, err := classfile.ParseMethodDescriptor(a.env.Descriptor)
	if err != nil {
		return err
	}
	entry := entryFrame(a.env.Owner, a.env.Access, a.env.Name, md)
	a.maxLocals = len(entry.Locals)

	start := 0
	for start < len(a.code.Insns) && a.code.Insns[start].IsMark() {
		start++
	}
	if start == len(a.code.Insns) {
		return fmt.Errorf("empty method body")
	}
	if err := a.merge(start, entry); err != nil {
		return err
	}

	for len(a.work) > 0 {
		i := a.work[len(a.work)-1]
		a.work = a.work[:len(a.work)-1]
		a.queued[i] = false

		insn := a.code.Insns[i]
		in := a.frames[i]
		out := in.clone()
		if err := a.execute(insn, out); err != nil {
			return fmt.Errorf("%s: %w", Mnemonic(insn.Op), err)
		}
		a.track(in)
		a.track(out)

		for _, h := range a.handlers[i] {
			hi, err := a.target(h.Handler)
			if err != nil {
				return err
			}
			catch := "java/lang/Throwable"
			if h.CatchType != 0 {
				if catch, err = classfile.GetClassName(a.pool, h.CatchType); err != nil {
					return err
				}
			}
			for _, locals := range [][]VType{in.Locals, out.Locals} {
				hf := &Frame{Locals: append([]VType(nil), locals...), Stack: []VType{Object(catch)}}
				if err := a.merge(hi, hf); err != nil {
					return err
				}
			}
		}

		succ, err := a.successors(i, insn)
		if err != nil {
			return err
		}
		for _, s := range succ {
			if err := a.merge(s, out); err != nil {
				return err
			}
		}
		if insn.Op == OpJsr {
			// the subroutine returns to the next instruction without the
			// return address on the stack
			back := out.clone()
			back.Pop()
			if next := a.nextInsn(i); next >= 0 {
				if err := a.merge(next, back); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (a *analyzer) track(f *Frame) {
	a.maxStack = max(a.maxStack, len(f.Stack))
	a.maxLocals = max(a.maxLocals, len(f.Locals))
}

func (a *analyzer) nextInsn(i int) int {
	for j := i + 1; j < len(a.code.Insns); j++ {
		if !a.code.Insns[j].IsMark() {
			return j
		}
	}
	return -1
}

func (a *analyzer) successors(i int, insn *Insn) ([]int, error) {
	var succ []int
	add := func(l *Label) error {
		t, err := a.target(l)
		if err != nil {
			return err
		}
		succ = append(succ, t)
		return nil
	}
	if insn.Target != nil {
		if err := add(insn.Target); err != nil {
			return nil, err
		}
	}
	if insn.Op == OpTableswitch || insn.Op == OpLookupswitch {
		if err := add(insn.Default); err != nil {
			return nil, err
		}
		for _, l := range insn.Targets {
			if err := add(l); err != nil {
				return nil, err
			}
		}
	}
	if !endsFlow(insn.Op) && insn.Op != OpJsr {
		next := a.nextInsn(i)
		if next < 0 {
			return nil, fmt.Errorf("execution falls off the end of the code")
		}
		succ = append(succ, next)
	}
	return succ, nil
}

func (a *analyzer) merge(i int, f *Frame) error {
	cur := a.frames[i]
	if cur == nil {
		a.frames[i] = f.clone()
		a.enqueue(i)
		return nil
	}
	if len(cur.Stack) != len(f.Stack) {
		return fmt.Errorf("inconsistent stack height at merge point: %d and %d", len(cur.Stack), len(f.Stack))
	}

	changed := false
	for j := range cur.Stack {
		if t := a.mergeType(cur.Stack[j], f.Stack[j]); t != cur.Stack[j] {
			cur.Stack[j] = t
			changed = true
		}
	}
	n := max(len(cur.Locals), len(f.Locals))
	for j := 0; j < n; j++ {
		x, y := Top, Top
		if j < len(cur.Locals) {
			x = cur.Locals[j]
		}
		if j < len(f.Locals) {
			y = f.Locals[j]
		}
		t := a.mergeType(x, y)
		if j >= len(cur.Locals) {
			cur.Locals = append(cur.Locals, t)
			changed = true
		} else if t != cur.Locals[j] {
			cur.Locals[j] = t
			changed = true
		}
	}
	if changed {
		a.enqueue(i)
	}
	return nil
}

func (a *analyzer) enqueue(i int) {
	if !a.queued[i] {
		a.queued[i] = true
		a.work = append(a.work, i)
	}
}

func (a *analyzer) mergeType(x, y VType) VType {
	switch {
	case x == y:
		return x
	case x.Kind == KindNull && y.Kind == KindObject:
		return y
	case y.Kind == KindNull && x.Kind == KindObject:
		return x
	case x.Kind == KindObject && y.Kind == KindObject:
		return Object(a.commonClass(x.Class, y.Class))
	}
	return Top
}

// commonClass joins two distinct class or array names. Arrays of the same
// dimension with reference elements join element-wise; any other mix of
// arrays joins to java/lang/Object.
func (a *analyzer) commonClass(x, y string) string {
	if x[0] != '[' && y[0] != '[' {
		return a.hierarchy.CommonSuperClass(x, y)
	}
	dx, ex := splitArray(x)
	dy, ey := splitArray(y)
	if dx != dy || ex[0] != 'L' || ey[0] != 'L' {
		return "java/lang/Object"
	}
	ex, ey = ex[1:len(ex)-1], ey[1:len(ey)-1]
	elem := ex
	if ex != ey {
		elem = a.hierarchy.CommonSuperClass(ex, ey)
	}
	return strings.Repeat("[", dx) + "L" + elem + ";"
}

// splitArray returns the dimension count of an array name and its element
// descriptor. Plain class names have zero dimensions.
func splitArray(name string) (int, string) {
	dims := strings.LastIndexByte(name, '[') + 1
	if dims == 0 {
		return 0, "L" + name + ";"
	}
	return dims, name[dims:]
}

// blockStarts marks branch targets, handler entries and the instructions
// that follow an unconditional transfer of control.
func (a *analyzer) blockStarts() []bool {
	need := make([]bool, len(a.code.Insns))
	mark := func(l *Label) {
		if i, ok := a.first[l]; ok && i < len(need) {
			need[i] = true
		}
	}
	for i, insn := range a.code.Insns {
		if insn.IsMark() {
			continue
		}
		if insn.Target != nil {
			mark(insn.Target)
		}
		if insn.Op == OpTableswitch || insn.Op == OpLookupswitch {
			mark(insn.Default)
			for _, l := range insn.Targets {
				mark(l)
			}
		}
		if endsFlow(insn.Op) || insn.Op == OpJsr {
			if next := a.nextInsn(i); next >= 0 {
				need[next] = true
			}
		}
	}
	for _, h := range a.code.Handlers {
		mark(h.Handler)
	}
	return need
}

var (
	primitives = [4]VType{Integer, Long, Float, Double}
	loadTypes  = [8]VType{Integer, Long, Float, Double, {}, Integer, Integer, Integer}
)

func (a *analyzer) constant(index int) (VType, error) {
	if index <= 0 || index >= len(a.pool) || a.pool[index] == nil {
		return Top, fmt.Errorf("invalid constant pool index %d", index)
	}
	switch c := a.pool[index].(type) {
	case *classfile.ConstantInteger:
		return Integer, nil
	case *classfile.ConstantFloat:
		return Float, nil
	case *classfile.ConstantLong:
		return Long, nil
	case *classfile.ConstantDouble:
		return Double, nil
	case *classfile.ConstantString:
		return Object("java/lang/String"), nil
	case *classfile.ConstantClass:
		return Object("java/lang/Class"), nil
	case *classfile.ConstantMethodType:
		return Object("java/lang/invoke/MethodType"), nil
	case *classfile.ConstantMethodHandle:
		return Object("java/lang/invoke/MethodHandle"), nil
	case *classfile.ConstantDynamic:
		_, desc, err := classfile.ResolveNameAndType(a.pool, c.NameAndTypeIndex)
		if err != nil {
			return Top, err
		}
		return typeOf(desc), nil
	}
	return Top, fmt.Errorf("constant pool index %d (tag %d) is not loadable", index, a.pool[index].Tag())
}

func (a *analyzer) className(index int) (string, error) {
	return classfile.GetClassName(a.pool, uint16(index))
}

func (a *analyzer) popArgs(f *Frame, desc string) (*classfile.MethodDescriptor, error) {
	md, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return nil, err
	}
	f.PopN(md.ArgumentSlots())
	return md, nil
}

func pushReturn(f *Frame, md *classfile.MethodDescriptor) {
	if md.Return != "V" {
		f.Push(typeOf(md.Return))
	}
}

// execute applies the effect of insn to f.
func (a *analyzer) execute(insn *Insn, f *Frame) error {
	op := insn.Op
	switch {
	case op == OpNop:
	case op == OpAconstNull:
		f.Push(Null)
	case op >= OpIconstM1 && op <= OpIconst5, op == OpBipush, op == OpSipush:
		f.Push(Integer)
	case op == OpLconst0 || op == OpLconst1:
		f.Push(Long)
	case op >= OpFconst0 && op <= OpFconst2:
		f.Push(Float)
	case op == OpDconst0 || op == OpDconst1:
		f.Push(Double)
	case op == OpLdc || op == OpLdcW || op == OpLdc2W:
		t, err := a.constant(insn.Index)
		if err != nil {
			return err
		}
		f.Push(t)

	case op >= OpIload && op <= OpDload:
		t := primitives[op-OpIload]
		f.GetLocal(insn.Index)
		f.Push(t)
	case op == OpAload:
		t := f.GetLocal(insn.Index)
		if !t.isReference() {
			return fmt.Errorf("local %d holds %s, not a reference", insn.Index, t)
		}
		f.Push(t)

	case op >= OpIaload && op <= OpSaload:
		f.Pop()
		array := f.Pop()
		if op == OpAaload {
			f.Push(componentType(array))
		} else {
			f.Push(loadTypes[op-OpIaload])
		}

	case op >= OpIstore && op <= OpDstore:
		t := primitives[op-OpIstore]
		f.PopValue(t)
		f.SetLocal(insn.Index, t)
	case op == OpAstore:
		f.SetLocal(insn.Index, f.Pop())

	case op >= OpIastore && op <= OpSastore:
		if op == OpLastore || op == OpDastore {
			f.PopN(4)
		} else {
			f.PopN(3)
		}

	case op == OpPop:
		f.Pop()
	case op == OpPop2:
		f.PopN(2)
	case op == OpDup:
		v := f.Pop()
		f.Stack = append(f.Stack, v, v)
	case op == OpDupX1:
		s := f.PopN(2)
		f.Stack = append(f.Stack, s[1], s[0], s[1])
	case op == OpDupX2:
		s := f.PopN(3)
		f.Stack = append(f.Stack, s[2], s[0], s[1], s[2])
	case op == OpDup2:
		s := f.PopN(2)
		f.Stack = append(f.Stack, s[0], s[1], s[0], s[1])
	case op == OpDup2X1:
		s := f.PopN(3)
		f.Stack = append(f.Stack, s[1], s[2], s[0], s[1], s[2])
	case op == OpDup2X2:
		s := f.PopN(4)
		f.Stack = append(f.Stack, s[2], s[3], s[0], s[1], s[2], s[3])
	case op == OpSwap:
		s := f.PopN(2)
		f.Stack = append(f.Stack, s[1], s[0])

	case op >= OpIadd && op <= OpDrem:
		t := primitives[(op-OpIadd)%4]
		f.PopValue(t)
		f.PopValue(t)
		f.Push(t)
	case op >= OpIneg && op <= OpDneg:
		t := primitives[op-OpIneg]
		f.PopValue(t)
		f.Push(t)
	case op >= OpIshl && op <= OpLushr:
		t := primitives[(op-OpIshl)%2]
		f.Pop()
		f.PopValue(t)
		f.Push(t)
	case op >= OpIand && op <= OpLxor:
		t := primitives[(op-OpIand)%2]
		f.PopValue(t)
		f.PopValue(t)
		f.Push(t)
	case op == OpIinc:
		if t := f.GetLocal(insn.Index); t != Integer {
			return fmt.Errorf("iinc on local %d holding %s", insn.Index, t)
		}

	case op >= OpI2l && op <= OpI2s:
		from, to := conversion(op)
		f.PopValue(from)
		f.Push(to)

	case op == OpLcmp || op == OpDcmpl || op == OpDcmpg:
		f.PopN(4)
		f.Push(Integer)
	case op == OpFcmpl || op == OpFcmpg:
		f.PopN(2)
		f.Push(Integer)

	case op >= OpIfeq && op <= OpIfle, op == OpIfnull, op == OpIfnonnull:
		f.Pop()
	case op >= OpIfIcmpeq && op <= OpIfAcmpne:
		f.PopN(2)
	case op == OpGoto:
	case op == OpJsr, op == OpRet:
		if a.env.NeedsFrames() {
			return ErrJsrWithFrames
		}
		if op == OpJsr {
			f.Push(Top)
		}
	case op == OpTableswitch || op == OpLookupswitch:
		f.Pop()

	case op >= OpIreturn && op <= OpDreturn:
		f.PopValue(primitives[op-OpIreturn])
	case op == OpAreturn || op == OpAthrow || op == OpMonitorenter || op == OpMonitorexit:
		f.Pop()
	case op == OpReturn:

	case op >= OpGetstatic && op <= OpPutfield:
		ref, err := classfile.ResolveMember(a.pool, uint16(insn.Index))
		if err != nil {
			return err
		}
		t := typeOf(ref.Descriptor)
		switch op {
		case OpGetstatic:
			f.Push(t)
		case OpPutstatic:
			f.PopValue(t)
		case OpGetfield:
			f.Pop()
			f.Push(t)
		case OpPutfield:
			f.PopValue(t)
			f.Pop()
		}

	case op >= OpInvokevirtual && op <= OpInvokeinterface:
		ref, err := classfile.ResolveMember(a.pool, uint16(insn.Index))
		if err != nil {
			return err
		}
		md, err := a.popArgs(f, ref.Descriptor)
		if err != nil {
			return err
		}
		if op != OpInvokestatic {
			recv := f.Pop()
			if op == OpInvokespecial && ref.Name == "<init>" {
				switch recv.Kind {
				case KindUninitializedThis:
					f.replace(recv, Object(a.env.Owner))
				case KindUninitialized:
					f.replace(recv, Object(recv.Class))
				}
			}
		}
		pushReturn(f, md)

	case op == OpInvokedynamic:
		dyn, ok := a.pool[insn.Index].(*classfile.ConstantDynamic)
		if !ok || dyn.Kind != classfile.TagInvokeDynamic {
			return fmt.Errorf("constant pool index %d is not InvokeDynamic", insn.Index)
		}
		_, desc, err := classfile.ResolveNameAndType(a.pool, dyn.NameAndTypeIndex)
		if err != nil {
			return err
		}
		md, err := a.popArgs(f, desc)
		if err != nil {
			return err
		}
		pushReturn(f, md)

	case op == OpNew:
		name, err := a.className(insn.Index)
		if err != nil {
			return err
		}
		f.Push(VType{Kind: KindUninitialized, Class: name, New: insn})
	case op == OpNewarray:
		elem, ok := newarrayTypes[insn.Const]
		if !ok {
			return fmt.Errorf("invalid newarray type %d", insn.Const)
		}
		f.Pop()
		f.Push(Object("[" + elem))
	case op == OpAnewarray:
		name, err := a.className(insn.Index)
		if err != nil {
			return err
		}
		f.Pop()
		f.Push(Object("[" + classfile.ObjectDescriptor(name)))
	case op == OpArraylength:
		f.Pop()
		f.Push(Integer)
	case op == OpCheckcast:
		name, err := a.className(insn.Index)
		if err != nil {
			return err
		}
		f.Pop()
		f.Push(Object(name))
	case op == OpInstanceof:
		f.Pop()
		f.Push(Integer)
	case op == OpMultianewarray:
		name, err := a.className(insn.Index)
		if err != nil {
			return err
		}
		f.PopN(insn.Const)
		f.Push(Object(name))

	default:
		return fmt.Errorf("unsupported opcode 0x%02x", op)
	}
	return nil
}

var newarrayTypes = map[int]string{
	4: "Z", 5: "C", 6: "F", 7: "D", 8: "B", 9: "S", 10: "I", 11: "J",
}

func componentType(array VType) VType {
	if array.Kind == KindObject && len(array.Class) > 1 && array.Class[0] == '[' {
		return typeOf(array.Class[1:])
	}
	if array.Kind == KindNull {
		return Null
	}
	return Object("java/lang/Object")
}

func conversion(op byte) (from, to VType) {
	switch op {
	case OpI2b, OpI2c, OpI2s:
		return Integer, Integer
	}
	// i2l i2f i2d l2i l2f l2d f2i f2l f2d d2i d2l d2f
	n := int(op - OpI2l)
	from = primitives[n/3]
	targets := [4][3]VType{
		{Long, Float, Double},
		{Integer, Float, Double},
		{Integer, Long, Double},
		{Integer, Long, Float},
	}
	return from, targets[n/3][n%3]
}
