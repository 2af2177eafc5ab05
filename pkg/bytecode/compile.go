package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/daimatz/classpatch/pkg/classfile"
)

// Compile assembles c and recomputes max_stack, max_locals and, for class
// versions 50 and above, the StackMapTable. Unreachable instructions are
// overwritten with nop ... athrow so the result always verifies.
func Compile(c *Code, env Env) (*classfile.Code, error) {
	asm, err := assemble(c)
	if err != nil {
		return nil, fmt.Errorf("assembling %s%s: %w", env.Name, env.Descriptor, err)
	}
	an, err := Analyze(c, env)
	if err != nil {
		return nil, err
	}

	placed := make(map[*Label]bool)
	for _, insn := range c.Insns {
		if insn.IsMark() {
			placed[insn.Mark] = true
		}
	}
	for _, l := range c.Lines {
		if !placed[l.Start] {
			return nil, fmt.Errorf("compiling %s%s: line number entry refers to a label that is not placed", env.Name, env.Descriptor)
		}
	}
	for _, lv := range append(append([]LocalVar(nil), c.LocalVars...), c.LocalVarTypes...) {
		if !placed[lv.Start] || !placed[lv.End] {
			return nil, fmt.Errorf("compiling %s%s: local variable entry refers to a label that is not placed", env.Name, env.Descriptor)
		}
	}

	out := &classfile.Code{
		MaxStack:  uint16(an.MaxStack),
		MaxLocals: uint16(an.MaxLocals),
		Code:      asm.code,
	}
	for _, lv := range append(append([]LocalVar(nil), c.LocalVars...), c.LocalVarTypes...) {
		width := 1
		if desc, err := classfile.GetUtf8(env.Pool.Entries(), lv.DescriptorIndex); err == nil && classfile.SlotSize(desc) == 2 {
			width = 2
		}
		out.MaxLocals = max(out.MaxLocals, lv.Index+uint16(width))
	}
	if an.MaxStack > 0xFFFF || an.MaxLocals > 0xFFFF {
		return nil, fmt.Errorf("compiling %s%s: stack or locals exceed 65535 slots", env.Name, env.Descriptor)
	}

	var dead []span
	if env.NeedsFrames() {
		dead = deadSpans(c, an, asm)
		for _, d := range dead {
			for pc := d.start; pc < d.end-1; pc++ {
				out.Code[pc] = OpNop
			}
			out.Code[d.end-1] = OpAthrow
		}
		if len(dead) > 0 {
			out.MaxStack = max(out.MaxStack, 1)
		}
	}

	for _, h := range c.Handlers {
		start, end, handler := h.Start.offset, h.End.offset, h.Handler.offset
		for _, r := range subtract(span{start, end}, dead) {
			out.ExceptionHandlers = append(out.ExceptionHandlers, classfile.ExceptionHandler{
				StartPC:   uint16(r.start),
				EndPC:     uint16(r.end),
				HandlerPC: uint16(handler),
				CatchType: h.CatchType,
			})
		}
	}

	attr := func(name string, data []byte) error {
		idx, err := env.Pool.Utf8(name)
		if err != nil {
			return err
		}
		out.Attributes = append(out.Attributes, classfile.AttributeInfo{NameIndex: idx, Name: name, Data: data})
		return nil
	}

	if len(c.Lines) > 0 {
		if err := attr(classfile.AttrLineNumberTable, encodeLines(c.Lines)); err != nil {
			return nil, err
		}
	}
	if len(c.LocalVars) > 0 {
		if err := attr(classfile.AttrLocalVariableTable, encodeLocalVars(c.LocalVars)); err != nil {
			return nil, err
		}
	}
	if len(c.LocalVarTypes) > 0 {
		if err := attr(classfile.AttrLocalVariableTypeTable, encodeLocalVars(c.LocalVarTypes)); err != nil {
			return nil, err
		}
	}
	out.Attributes = append(out.Attributes, c.Attributes...)

	if env.NeedsFrames() {
		frames, err := collectFrames(c, an, asm, dead)
		if err != nil {
			return nil, fmt.Errorf("compiling %s%s: %w", env.Name, env.Descriptor, err)
		}
		if len(frames) > 0 {
			data, err := EncodeStackMapTable(frames, env.Pool)
			if err != nil {
				return nil, fmt.Errorf("compiling %s%s: %w", env.Name, env.Descriptor, err)
			}
			if err := attr(classfile.AttrStackMapTable, data); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

type span struct {
	start, end int
}

// deadSpans returns the byte ranges of maximal runs of unreachable instructions.
func deadSpans(c *Code, an *Analysis, asm *assembly) []span {
	var spans []span
	open := -1
	for i, insn := range c.Insns {
		if insn.IsMark() {
			continue
		}
		if !an.Reachable(i) {
			if open < 0 {
				open = asm.offsets[i]
			}
			continue
		}
		if open >= 0 {
			spans = append(spans, span{open, asm.offsets[i]})
			open = -1
		}
	}
	if open >= 0 {
		spans = append(spans, span{open, len(asm.code)})
	}
	return spans
}

// subtract removes the dead spans from r.
func subtract(r span, dead []span) []span {
	out := []span{r}
	for _, d := range dead {
		var next []span
		for _, s := range out {
			if d.end <= s.start || d.start >= s.end {
				next = append(next, s)
				continue
			}
			if s.start < d.start {
				next = append(next, span{s.start, d.start})
			}
			if d.end < s.end {
				next = append(next, span{d.end, s.end})
			}
		}
		out = next
	}
	return out
}

// MapFrame is one StackMapTable entry at an absolute offset.
type MapFrame struct {
	Offset int
	Locals []VType
	Stack  []VType
	// uninitialized values refer to the offset of their "new" instruction
	newOffsets map[*Insn]int
}

func collectFrames(c *Code, an *Analysis, asm *assembly, dead []span) ([]MapFrame, error) {
	newOffsets := make(map[*Insn]int)
	for i, insn := range c.Insns {
		if !insn.IsMark() && insn.Op == OpNew {
			newOffsets[insn] = asm.offsets[i]
		}
	}

	var frames []MapFrame
	for i, insn := range c.Insns {
		if insn.IsMark() || !an.NeedFrame[i] || !an.Reachable(i) {
			continue
		}
		f := an.Frames[i]
		frames = append(frames, MapFrame{
			Offset:     asm.offsets[i],
			Locals:     f.Locals,
			Stack:      f.Stack,
			newOffsets: newOffsets,
		})
	}
	for _, d := range dead {
		frames = append(frames, MapFrame{
			Offset: d.start,
			Stack:  []VType{Object("java/lang/Throwable")},
		})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Offset < frames[j].Offset })
	for i := 1; i < len(frames); i++ {
		if frames[i].Offset == frames[i-1].Offset {
			return nil, fmt.Errorf("two frames at offset %d", frames[i].Offset)
		}
	}
	return frames, nil
}

// EncodeStackMapTable serializes frames as full_frame entries. Frames must
// be sorted by offset.
func EncodeStackMapTable(frames []MapFrame, pool *classfile.Pool) ([]byte, error) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(len(frames)))
	prev := -1
	for _, f := range frames {
		delta := f.Offset - prev - 1
		if delta < 0 || delta > 0xFFFF {
			return nil, fmt.Errorf("frame offset %d out of order", f.Offset)
		}
		prev = f.Offset

		buf.WriteByte(255)
		binary.Write(&buf, binary.BigEndian, uint16(delta))
		for _, slots := range [][]VType{trimTop(f.Locals), f.Stack} {
			types := compact(slots)
			binary.Write(&buf, binary.BigEndian, uint16(len(types)))
			for _, t := range types {
				if err := writeVType(&buf, t, pool, f.newOffsets); err != nil {
					return nil, err
				}
			}
		}
	}
	return buf.Bytes(), nil
}

func trimTop(locals []VType) []VType {
	n := len(locals)
	for n > 0 && locals[n-1] == Top {
		// keep the Top that completes a trailing long or double
		if n >= 2 && locals[n-2].wide() {
			break
		}
		n--
	}
	return locals[:n]
}

// compact folds the second slot of long and double values.
func compact(slots []VType) []VType {
	out := make([]VType, 0, len(slots))
	for i := 0; i < len(slots); i++ {
		out = append(out, slots[i])
		if slots[i].wide() {
			i++
		}
	}
	return out
}

func writeVType(buf *bytes.Buffer, t VType, pool *classfile.Pool, newOffsets map[*Insn]int) error {
	switch t.Kind {
	case KindTop:
		buf.WriteByte(0)
	case KindInteger:
		buf.WriteByte(1)
	case KindFloat:
		buf.WriteByte(2)
	case KindDouble:
		buf.WriteByte(3)
	case KindLong:
		buf.WriteByte(4)
	case KindNull:
		buf.WriteByte(5)
	case KindUninitializedThis:
		buf.WriteByte(6)
	case KindObject:
		idx, err := pool.Class(t.Class)
		if err != nil {
			return err
		}
		buf.WriteByte(7)
		binary.Write(buf, binary.BigEndian, idx)
	case KindUninitialized:
		off, ok := newOffsets[t.New]
		if !ok {
			return fmt.Errorf("uninitialized %s without a new instruction", t.Class)
		}
		buf.WriteByte(8)
		binary.Write(buf, binary.BigEndian, uint16(off))
	default:
		return fmt.Errorf("unknown verification type %d", t.Kind)
	}
	return nil
}

func encodeLines(lines []LineNumber) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(len(lines)))
	for _, l := range lines {
		binary.Write(&buf, binary.BigEndian, uint16(l.Start.offset))
		binary.Write(&buf, binary.BigEndian, l.Line)
	}
	return buf.Bytes()
}

func encodeLocalVars(vars []LocalVar) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(len(vars)))
	for _, v := range vars {
		binary.Write(&buf, binary.BigEndian, uint16(v.Start.offset))
		binary.Write(&buf, binary.BigEndian, uint16(v.End.offset-v.Start.offset))
		binary.Write(&buf, binary.BigEndian, v.NameIndex)
		binary.Write(&buf, binary.BigEndian, v.DescriptorIndex)
		binary.Write(&buf, binary.BigEndian, v.Index)
	}
	return buf.Bytes()
}
