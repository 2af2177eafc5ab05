package bytecode

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/daimatz/classpatch/pkg/classfile"
)

// Label marks a position in an instruction list. Its bytecode offset is
// only known after assembly.
type Label struct {
	offset int
}

// NewLabel returns an unplaced label.
func NewLabel() *Label {
	return &Label{offset: -1}
}

// Offset returns the bytecode offset of the label, or -1 before assembly.
func (l *Label) Offset() int {
	return l.offset
}

// Insn is one entry of an instruction list: either a real instruction or,
// when Mark is set, the position of a label.
//
// Local variable loads and stores are normalized: "aload_0" decodes as
// OpAload with Index 0, and "wide" prefixes are folded into the
// instruction they modify. goto_w and jsr_w decode as OpGoto and OpJsr.
type Insn struct {
	Op   byte
	Mark *Label

	// Index is a constant pool index or a local variable slot.
	Index int
	// Const holds bipush/sipush values, the iinc increment, the newarray
	// type code, the multianewarray dimension count and the
	// invokeinterface argument count.
	Const int

	Target *Label

	Default *Label
	Low     int32
	Keys    []int32
	Targets []*Label
}

// IsMark reports whether the entry is a label position.
func (i *Insn) IsMark() bool {
	return i.Mark != nil
}

func (i *Insn) String() string {
	if i.Mark != nil {
		return fmt.Sprintf("L%p:", i.Mark)
	}
	return Mnemonic(i.Op)
}

// Mnemonic returns the assembler name of an opcode.
func Mnemonic(op byte) string {
	if name := opcodes[op].name; name != "" {
		return name
	}
	return fmt.Sprintf("0x%02x", op)
}

// Handler is an exception table entry over labels.
type Handler struct {
	Start, End, Handler *Label
	CatchType           uint16
}

// LineNumber maps the instruction at Start to a source line.
type LineNumber struct {
	Start *Label
	Line  uint16
}

// LocalVar is an entry of LocalVariableTable or LocalVariableTypeTable.
type LocalVar struct {
	Start, End      *Label
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

// Code is an editable method body.
type Code struct {
	MaxStack  uint16
	MaxLocals uint16

	Insns         []*Insn
	Handlers      []*Handler
	Lines         []LineNumber
	LocalVars     []LocalVar
	LocalVarTypes []LocalVar

	// Attributes holds the nested attributes that are neither recomputed
	// nor label-mapped. They are emitted unchanged.
	Attributes []classfile.AttributeInfo
}

// Decode turns a Code attribute into an instruction list.
func Decode(c *classfile.Code) (*Code, error) {
	code := c.Code
	labels := make(map[int]*Label)
	labelAt := func(off int) (*Label, error) {
		if off < 0 || off > len(code) {
			return nil, fmt.Errorf("offset %d outside code of length %d", off, len(code))
		}
		l, ok := labels[off]
		if !ok {
			l = NewLabel()
			labels[off] = l
		}
		return l, nil
	}

	type decoded struct {
		off  int
		insn *Insn
	}
	var insns []decoded

	for pc := 0; pc < len(code); {
		insn, size, targets, err := decodeOne(code, pc)
		if err != nil {
			return nil, fmt.Errorf("decoding instruction at %d: %w", pc, err)
		}
		for _, t := range targets {
			l, err := labelAt(t.off)
			if err != nil {
				return nil, fmt.Errorf("branch at %d: %w", pc, err)
			}
			*t.dst = l
		}
		insns = append(insns, decoded{off: pc, insn: insn})
		pc += size
	}

	out := &Code{MaxStack: c.MaxStack, MaxLocals: c.MaxLocals}

	for _, h := range c.ExceptionHandlers {
		start, err := labelAt(int(h.StartPC))
		if err != nil {
			return nil, fmt.Errorf("exception handler start: %w", err)
		}
		end, err := labelAt(int(h.EndPC))
		if err != nil {
			return nil, fmt.Errorf("exception handler end: %w", err)
		}
		handler, err := labelAt(int(h.HandlerPC))
		if err != nil {
			return nil, fmt.Errorf("exception handler target: %w", err)
		}
		out.Handlers = append(out.Handlers, &Handler{Start: start, End: end, Handler: handler, CatchType: h.CatchType})
	}

	for _, attr := range c.Attributes {
		var err error
		switch attr.Name {
		case classfile.AttrStackMapTable:
			// recomputed on compile
		case classfile.AttrLineNumberTable:
			out.Lines, err = decodeLineNumbers(attr.Data, labelAt)
		case classfile.AttrLocalVariableTable:
			out.LocalVars, err = decodeLocalVars(attr.Data, labelAt)
		case classfile.AttrLocalVariableTypeTable:
			out.LocalVarTypes, err = decodeLocalVars(attr.Data, labelAt)
		default:
			out.Attributes = append(out.Attributes, attr)
		}
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", attr.Name, err)
		}
	}

	out.Insns = make([]*Insn, 0, len(insns)+len(labels))
	for _, d := range insns {
		if l, ok := labels[d.off]; ok {
			out.Insns = append(out.Insns, &Insn{Mark: l})
		}
		out.Insns = append(out.Insns, d.insn)
	}
	if l, ok := labels[len(code)]; ok {
		out.Insns = append(out.Insns, &Insn{Mark: l})
	}
	return out, nil
}

type pendingTarget struct {
	off int
	dst **Label
}

func decodeOne(code []byte, pc int) (*Insn, int, []pendingTarget, error) {
	op := code[pc]
	info := opcodes[op]
	if info.name == "" {
		return nil, 0, nil, fmt.Errorf("unknown opcode 0x%02x", op)
	}
	need := func(n int) error {
		if pc+n > len(code) {
			return fmt.Errorf("truncated %s", info.name)
		}
		return nil
	}
	u8 := func(at int) int { return int(code[at]) }
	s8 := func(at int) int { return int(int8(code[at])) }
	u16 := func(at int) int { return int(binary.BigEndian.Uint16(code[at:])) }
	s16 := func(at int) int { return int(int16(binary.BigEndian.Uint16(code[at:]))) }
	s32 := func(at int) int32 { return int32(binary.BigEndian.Uint32(code[at:])) }

	insn := &Insn{Op: op}
	if info.length > 0 {
		if err := need(info.length); err != nil {
			return nil, 0, nil, err
		}
	}

	switch {
	case op >= OpIload0 && op <= OpAload3:
		insn.Op = OpIload + (op-OpIload0)/4
		insn.Index = int((op - OpIload0) % 4)
	case op >= OpIstore0 && op <= OpAstore3:
		insn.Op = OpIstore + (op-OpIstore0)/4
		insn.Index = int((op - OpIstore0) % 4)
	case op == OpBipush:
		insn.Const = s8(pc + 1)
	case op == OpSipush:
		insn.Const = s16(pc + 1)
	case op == OpLdc:
		insn.Index = u8(pc + 1)
	case op == OpLdcW:
		insn.Op = OpLdc
		insn.Index = u16(pc + 1)
	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore, op == OpRet:
		insn.Index = u8(pc + 1)
	case op == OpIinc:
		insn.Index = u8(pc + 1)
		insn.Const = s8(pc + 2)
	case op == OpNewarray:
		insn.Const = u8(pc + 1)
	case op == OpMultianewarray:
		insn.Index = u16(pc + 1)
		insn.Const = u8(pc + 3)
	case op == OpInvokeinterface:
		insn.Index = u16(pc + 1)
		insn.Const = u8(pc + 3)
	case isJump(op) && op != OpGotoW && op != OpJsrW:
		return insn, info.length, []pendingTarget{{off: pc + s16(pc+1), dst: &insn.Target}}, nil
	case op == OpGotoW || op == OpJsrW:
		insn.Op = OpGoto
		if op == OpJsrW {
			insn.Op = OpJsr
		}
		return insn, info.length, []pendingTarget{{off: pc + int(s32(pc+1)), dst: &insn.Target}}, nil
	case op == OpTableswitch || op == OpLookupswitch:
		return decodeSwitch(code, pc, insn)
	case op == OpWide:
		if err := need(4); err != nil {
			return nil, 0, nil, err
		}
		inner := code[pc+1]
		insn.Op = inner
		insn.Index = u16(pc + 2)
		switch {
		case inner == OpIinc:
			if err := need(6); err != nil {
				return nil, 0, nil, err
			}
			insn.Const = s16(pc + 4)
			return insn, 6, nil, nil
		case inner >= OpIload && inner <= OpAload, inner >= OpIstore && inner <= OpAstore, inner == OpRet:
			return insn, 4, nil, nil
		}
		return nil, 0, nil, fmt.Errorf("invalid wide opcode 0x%02x", inner)
	case info.length == 3 || info.length == 5:
		// constant pool operand: field/method refs, classes, ldc2_w, invokedynamic
		insn.Index = u16(pc + 1)
	}
	return insn, info.length, nil, nil
}

func decodeSwitch(code []byte, pc int, insn *Insn) (*Insn, int, []pendingTarget, error) {
	p := (pc + 4) &^ 3
	read := func() (int32, error) {
		if p+4 > len(code) {
			return 0, fmt.Errorf("truncated %s", Mnemonic(insn.Op))
		}
		v := int32(binary.BigEndian.Uint32(code[p:]))
		p += 4
		return v, nil
	}

	def, err := read()
	if err != nil {
		return nil, 0, nil, err
	}
	targets := []pendingTarget{{off: pc + int(def), dst: &insn.Default}}

	var n int
	if insn.Op == OpTableswitch {
		low, err := read()
		if err != nil {
			return nil, 0, nil, err
		}
		high, err := read()
		if err != nil {
			return nil, 0, nil, err
		}
		if high < low || int64(high)-int64(low) > 0xFFFF {
			return nil, 0, nil, fmt.Errorf("invalid tableswitch bounds %d..%d", low, high)
		}
		insn.Low = low
		n = int(high-low) + 1
	} else {
		npairs, err := read()
		if err != nil {
			return nil, 0, nil, err
		}
		if npairs < 0 || npairs > 0xFFFF {
			return nil, 0, nil, fmt.Errorf("invalid lookupswitch pair count %d", npairs)
		}
		n = int(npairs)
		insn.Keys = make([]int32, n)
	}

	insn.Targets = make([]*Label, n)
	for i := 0; i < n; i++ {
		if insn.Op == OpLookupswitch {
			if insn.Keys[i], err = read(); err != nil {
				return nil, 0, nil, err
			}
		}
		off, err := read()
		if err != nil {
			return nil, 0, nil, err
		}
		targets = append(targets, pendingTarget{off: pc + int(off), dst: &insn.Targets[i]})
	}
	return insn, p - pc, targets, nil
}

func decodeLineNumbers(data []byte, labelAt func(int) (*Label, error)) ([]LineNumber, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("attribute too short")
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) != 2+4*n {
		return nil, fmt.Errorf("attribute length %d does not match %d entries", len(data), n)
	}
	lines := make([]LineNumber, n)
	for i := range lines {
		e := data[2+4*i:]
		l, err := labelAt(int(binary.BigEndian.Uint16(e)))
		if err != nil {
			return nil, err
		}
		lines[i] = LineNumber{Start: l, Line: binary.BigEndian.Uint16(e[2:])}
	}
	return lines, nil
}

func decodeLocalVars(data []byte, labelAt func(int) (*Label, error)) ([]LocalVar, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("attribute too short")
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) != 2+10*n {
		return nil, fmt.Errorf("attribute length %d does not match %d entries", len(data), n)
	}
	vars := make([]LocalVar, n)
	for i := range vars {
		e := data[2+10*i:]
		startPC := int(binary.BigEndian.Uint16(e))
		length := int(binary.BigEndian.Uint16(e[2:]))
		start, err := labelAt(startPC)
		if err != nil {
			return nil, err
		}
		end, err := labelAt(startPC + length)
		if err != nil {
			return nil, err
		}
		vars[i] = LocalVar{
			Start:           start,
			End:             end,
			NameIndex:       binary.BigEndian.Uint16(e[4:]),
			DescriptorIndex: binary.BigEndian.Uint16(e[6:]),
			Index:           binary.BigEndian.Uint16(e[8:]),
		}
	}
	return vars, nil
}

func isJump(op byte) bool {
	return (op >= OpIfeq && op <= OpJsr) || op == OpIfnull || op == OpIfnonnull || op == OpGotoW || op == OpJsrW
}

func isConditional(op byte) bool {
	return (op >= OpIfeq && op <= OpIfAcmpne) || op == OpIfnull || op == OpIfnonnull
}

// endsFlow reports whether control never falls through to the next instruction.
func endsFlow(op byte) bool {
	switch op {
	case OpGoto, OpRet, OpTableswitch, OpLookupswitch, OpAthrow,
		OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn, OpReturn:
		return true
	}
	return false
}

// Index returns the position of insn in the list, or -1.
func (c *Code) Index(insn *Insn) int {
	return slices.Index(c.Insns, insn)
}

// InsertBefore inserts insns in front of at. It panics if at is not part of c.
func (c *Code) InsertBefore(at *Insn, insns ...*Insn) {
	i := c.Index(at)
	if i < 0 {
		panic("bytecode: InsertBefore: instruction not in list")
	}
	c.Insns = slices.Insert(c.Insns, i, insns...)
}

// InsertAfter inserts insns right after at. It panics if at is not part of c.
func (c *Code) InsertAfter(at *Insn, insns ...*Insn) {
	i := c.Index(at)
	if i < 0 {
		panic("bytecode: InsertAfter: instruction not in list")
	}
	c.Insns = slices.Insert(c.Insns, i+1, insns...)
}

// Prepend inserts insns at the very start of the body, ahead of any label,
// so that jumps back to the original entry point skip them.
func (c *Code) Prepend(insns ...*Insn) {
	c.Insns = slices.Insert(c.Insns, 0, insns...)
}

// Remove deletes a real instruction. Label markers cannot be removed.
func (c *Code) Remove(insn *Insn) {
	if insn.IsMark() {
		panic("bytecode: Remove: cannot remove a label")
	}
	if i := c.Index(insn); i >= 0 {
		c.Insns = slices.Delete(c.Insns, i, i+1)
	}
}

// Simple returns an instruction without operands.
func Simple(op byte) *Insn {
	return &Insn{Op: op}
}

// WithIndex returns an instruction with a constant pool or local variable operand.
func WithIndex(op byte, index int) *Insn {
	return &Insn{Op: op, Index: index}
}

// Jump returns a branch instruction.
func Jump(op byte, target *Label) *Insn {
	return &Insn{Op: op, Target: target}
}

// Mark returns a marker placing l.
func Mark(l *Label) *Insn {
	return &Insn{Mark: l}
}

// Push returns the shortest instruction pushing the int constant v.
func Push(v int) *Insn {
	switch {
	case v >= -1 && v <= 5:
		return &Insn{Op: byte(OpIconst0 + v)}
	case v >= -128 && v <= 127:
		return &Insn{Op: OpBipush, Const: v}
	default:
		return &Insn{Op: OpSipush, Const: v}
	}
}

// LoadOp returns the load instruction for a value of the given field descriptor.
func LoadOp(desc string) byte {
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return OpIload
	case 'J':
		return OpLload
	case 'F':
		return OpFload
	case 'D':
		return OpDload
	}
	return OpAload
}

// ReturnOp returns the return instruction for a method return descriptor.
func ReturnOp(desc string) byte {
	if desc == "V" {
		return OpReturn
	}
	return OpIreturn + LoadOp(desc) - OpIload
}

// LoadArgs loads the parameters of md, starting at local slot first.
func LoadArgs(md *classfile.MethodDescriptor, first int) []*Insn {
	insns := make([]*Insn, 0, len(md.Params))
	slot := first
	for _, p := range md.Params {
		insns = append(insns, WithIndex(LoadOp(p), slot))
		slot += classfile.SlotSize(p)
	}
	return insns
}
