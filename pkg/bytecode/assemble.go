package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrBranchOutOfRange is returned when a conditional branch cannot reach
// its target with a 16-bit offset. Unconditional jumps are widened to
// goto_w and jsr_w instead.
var ErrBranchOutOfRange = errors.New("branch offset out of range")

type assembly struct {
	code []byte
	// offsets[i] is the bytecode offset of c.Insns[i]; a label marker
	// shares the offset of the instruction that follows it.
	offsets []int
}

// Assemble lays out the instruction list and returns the bytecode. Label
// offsets are valid after a successful call.
func Assemble(c *Code) ([]byte, error) {
	asm, err := assemble(c)
	if err != nil {
		return nil, err
	}
	return asm.code, nil
}

func assemble(c *Code) (*assembly, error) {
	wide := make(map[*Insn]bool)
	for {
		offsets, size, err := layout(c, wide)
		if err != nil {
			return nil, err
		}

		grew := false
		for i, insn := range c.Insns {
			if insn.IsMark() || insn.Target == nil {
				continue
			}
			delta := insn.Target.offset - offsets[i]
			if delta >= math.MinInt16 && delta <= math.MaxInt16 {
				continue
			}
			if isConditional(insn.Op) {
				return nil, fmt.Errorf("%s at %d: %w", Mnemonic(insn.Op), offsets[i], ErrBranchOutOfRange)
			}
			if !wide[insn] {
				wide[insn] = true
				grew = true
			}
		}
		if grew {
			continue
		}

		if size > 0xFFFF {
			return nil, fmt.Errorf("method code too large: %d bytes", size)
		}
		code := make([]byte, 0, size)
		for i, insn := range c.Insns {
			if insn.IsMark() {
				continue
			}
			code, err = emit(code, insn, offsets[i], wide[insn])
			if err != nil {
				return nil, fmt.Errorf("%s at %d: %w", Mnemonic(insn.Op), offsets[i], err)
			}
		}
		return &assembly{code: code, offsets: offsets}, nil
	}
}

func layout(c *Code, wide map[*Insn]bool) ([]int, int, error) {
	placed := make(map[*Label]bool)
	offsets := make([]int, len(c.Insns))
	pc := 0
	for i, insn := range c.Insns {
		offsets[i] = pc
		if insn.IsMark() {
			if placed[insn.Mark] {
				return nil, 0, fmt.Errorf("label placed twice")
			}
			placed[insn.Mark] = true
			insn.Mark.offset = pc
			continue
		}
		n, err := insnSize(insn, pc, wide[insn])
		if err != nil {
			return nil, 0, fmt.Errorf("%s at %d: %w", Mnemonic(insn.Op), pc, err)
		}
		pc += n
	}

	check := func(l *Label) error {
		if l == nil || !placed[l] {
			return fmt.Errorf("branch to a label that is not placed")
		}
		return nil
	}
	for _, insn := range c.Insns {
		if insn.IsMark() {
			continue
		}
		if insn.Target != nil {
			if err := check(insn.Target); err != nil {
				return nil, 0, err
			}
		}
		if insn.Op == OpTableswitch || insn.Op == OpLookupswitch {
			if err := check(insn.Default); err != nil {
				return nil, 0, err
			}
			for _, t := range insn.Targets {
				if err := check(t); err != nil {
					return nil, 0, err
				}
			}
		}
	}
	return offsets, pc, nil
}

func isLocalOp(op byte) bool {
	return (op >= OpIload && op <= OpAload) || (op >= OpIstore && op <= OpAstore) || op == OpRet
}

func switchPadding(pc int) int {
	return (4 - (pc+1)%4) % 4
}

func insnSize(insn *Insn, pc int, wide bool) (int, error) {
	op := insn.Op
	switch {
	case isLocalOp(op):
		switch {
		case insn.Index < 0 || insn.Index > 0xFFFF:
			return 0, fmt.Errorf("local variable index %d out of range", insn.Index)
		case insn.Index <= 3 && op != OpRet:
			return 1, nil
		case insn.Index <= 0xFF:
			return 2, nil
		}
		return 4, nil
	case op == OpIinc:
		if insn.Index <= 0xFF && insn.Const >= math.MinInt8 && insn.Const <= math.MaxInt8 {
			return 3, nil
		}
		return 6, nil
	case op == OpLdc:
		if insn.Index <= 0xFF {
			return 2, nil
		}
		return 3, nil
	case op == OpGoto || op == OpJsr:
		if wide {
			return 5, nil
		}
		return 3, nil
	case op == OpTableswitch:
		if len(insn.Targets) == 0 {
			return 0, fmt.Errorf("tableswitch without targets")
		}
		return 1 + switchPadding(pc) + 12 + 4*len(insn.Targets), nil
	case op == OpLookupswitch:
		if len(insn.Keys) != len(insn.Targets) {
			return 0, fmt.Errorf("lookupswitch has %d keys and %d targets", len(insn.Keys), len(insn.Targets))
		}
		return 1 + switchPadding(pc) + 8 + 8*len(insn.Targets), nil
	case op == OpWide || op == OpLdcW || op == OpGotoW || op == OpJsrW ||
		(op >= OpIload0 && op <= OpAload3) || (op >= OpIstore0 && op <= OpAstore3):
		return 0, fmt.Errorf("opcode must be given in normalized form")
	}
	if n := opcodes[op].length; n > 0 && opcodes[op].name != "" {
		return n, nil
	}
	return 0, fmt.Errorf("unknown opcode 0x%02x", op)
}

func emit(code []byte, insn *Insn, pc int, wide bool) ([]byte, error) {
	op := insn.Op
	u16 := func(v int) error {
		if v < 0 || v > 0xFFFF {
			return fmt.Errorf("operand %d out of range", v)
		}
		code = binary.BigEndian.AppendUint16(code, uint16(v))
		return nil
	}
	s32 := func(v int) {
		code = binary.BigEndian.AppendUint32(code, uint32(int32(v)))
	}

	switch {
	case isLocalOp(op):
		switch {
		case insn.Index <= 3 && op >= OpIload && op <= OpAload:
			return append(code, OpIload0+(op-OpIload)*4+byte(insn.Index)), nil
		case insn.Index <= 3 && op >= OpIstore && op <= OpAstore:
			return append(code, OpIstore0+(op-OpIstore)*4+byte(insn.Index)), nil
		case insn.Index <= 0xFF:
			return append(code, op, byte(insn.Index)), nil
		}
		code = append(code, OpWide, op)
		return code, u16(insn.Index)

	case op == OpIinc:
		if insn.Index <= 0xFF && insn.Const >= math.MinInt8 && insn.Const <= math.MaxInt8 {
			return append(code, op, byte(insn.Index), byte(int8(insn.Const))), nil
		}
		if insn.Const < math.MinInt16 || insn.Const > math.MaxInt16 {
			return nil, fmt.Errorf("iinc increment %d out of range", insn.Const)
		}
		code = append(code, OpWide, op)
		if err := u16(insn.Index); err != nil {
			return nil, err
		}
		return binary.BigEndian.AppendUint16(code, uint16(int16(insn.Const))), nil

	case op == OpBipush:
		if insn.Const < math.MinInt8 || insn.Const > math.MaxInt8 {
			return nil, fmt.Errorf("bipush value %d out of range", insn.Const)
		}
		return append(code, op, byte(int8(insn.Const))), nil

	case op == OpSipush:
		if insn.Const < math.MinInt16 || insn.Const > math.MaxInt16 {
			return nil, fmt.Errorf("sipush value %d out of range", insn.Const)
		}
		code = append(code, op)
		return binary.BigEndian.AppendUint16(code, uint16(int16(insn.Const))), nil

	case op == OpNewarray:
		return append(code, op, byte(insn.Const)), nil

	case op == OpLdc:
		if insn.Index >= 1 && insn.Index <= 0xFF {
			return append(code, op, byte(insn.Index)), nil
		}
		code = append(code, OpLdcW)
		return code, u16(insn.Index)

	case isJump(op):
		delta := insn.Target.offset - pc
		if op == OpGoto || op == OpJsr {
			if wide {
				if op == OpGoto {
					code = append(code, OpGotoW)
				} else {
					code = append(code, OpJsrW)
				}
				s32(delta)
				return code, nil
			}
		}
		code = append(code, op)
		return binary.BigEndian.AppendUint16(code, uint16(int16(delta))), nil

	case op == OpTableswitch || op == OpLookupswitch:
		code = append(code, op)
		for i := 0; i < switchPadding(pc); i++ {
			code = append(code, 0)
		}
		s32(insn.Default.offset - pc)
		if op == OpTableswitch {
			s32(int(insn.Low))
			s32(int(insn.Low) + len(insn.Targets) - 1)
			for _, t := range insn.Targets {
				s32(t.offset - pc)
			}
			return code, nil
		}
		s32(len(insn.Keys))
		for i, k := range insn.Keys {
			if i > 0 && k <= insn.Keys[i-1] {
				return nil, fmt.Errorf("lookupswitch keys are not sorted")
			}
			s32(int(k))
			s32(insn.Targets[i].offset - pc)
		}
		return code, nil

	case op == OpInvokeinterface:
		code = append(code, op)
		if err := u16(insn.Index); err != nil {
			return nil, err
		}
		if insn.Const < 1 || insn.Const > 0xFF {
			return nil, fmt.Errorf("invokeinterface count %d out of range", insn.Const)
		}
		return append(code, byte(insn.Const), 0), nil

	case op == OpInvokedynamic:
		code = append(code, op)
		if err := u16(insn.Index); err != nil {
			return nil, err
		}
		return append(code, 0, 0), nil

	case op == OpMultianewarray:
		code = append(code, op)
		if err := u16(insn.Index); err != nil {
			return nil, err
		}
		if insn.Const < 1 || insn.Const > 0xFF {
			return nil, fmt.Errorf("multianewarray dimensions %d out of range", insn.Const)
		}
		return append(code, byte(insn.Const)), nil
	}

	switch opcodes[op].length {
	case 1:
		return append(code, op), nil
	case 3:
		code = append(code, op)
		return code, u16(insn.Index)
	}
	return nil, fmt.Errorf("cannot encode opcode 0x%02x", op)
}
