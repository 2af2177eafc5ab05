package classfile

import (
	"errors"
	"fmt"
)

// ErrPoolOverflow is returned when a constant pool would exceed 65535 slots.
var ErrPoolOverflow = errors.New("constant pool overflow")

type poolKey struct {
	tag  uint8
	s    string
	a, b uint16
	x    uint64
}

// Pool appends constants to a class's constant pool, reusing an existing
// entry whenever an identical one is already present. Existing indices are
// never moved.
type Pool struct {
	cf     *ClassFile
	lookup map[poolKey]uint16
}

// NewPool indexes the existing constants of cf.
func NewPool(cf *ClassFile) *Pool {
	if len(cf.ConstantPool) == 0 {
		cf.ConstantPool = []ConstantPoolEntry{nil}
	}
	p := &Pool{cf: cf, lookup: make(map[poolKey]uint16)}
	for i := len(cf.ConstantPool) - 1; i >= 1; i-- {
		if entry := cf.ConstantPool[i]; entry != nil {
			// iterate backwards so the lowest index wins for duplicates
			p.lookup[keyOf(entry)] = uint16(i)
		}
	}
	return p
}

// Entries returns the underlying constant pool slice.
func (p *Pool) Entries() []ConstantPoolEntry {
	return p.cf.ConstantPool
}

func keyOf(entry ConstantPoolEntry) poolKey {
	switch c := entry.(type) {
	case *ConstantUtf8:
		return poolKey{tag: TagUtf8, s: c.Value}
	case *ConstantInteger:
		return poolKey{tag: TagInteger, x: uint64(uint32(c.Value))}
	case *ConstantFloat:
		return poolKey{tag: TagFloat, x: uint64(c.Bits)}
	case *ConstantLong:
		return poolKey{tag: TagLong, x: uint64(c.Value)}
	case *ConstantDouble:
		return poolKey{tag: TagDouble, x: c.Bits}
	case *ConstantClass:
		return poolKey{tag: TagClass, a: c.NameIndex}
	case *ConstantString:
		return poolKey{tag: TagString, a: c.StringIndex}
	case *ConstantFieldref:
		return poolKey{tag: TagFieldref, a: c.ClassIndex, b: c.NameAndTypeIndex}
	case *ConstantMethodref:
		return poolKey{tag: TagMethodref, a: c.ClassIndex, b: c.NameAndTypeIndex}
	case *ConstantInterfaceMethodref:
		return poolKey{tag: TagInterfaceMethodref, a: c.ClassIndex, b: c.NameAndTypeIndex}
	case *ConstantNameAndType:
		return poolKey{tag: TagNameAndType, a: c.NameIndex, b: c.DescriptorIndex}
	case *ConstantMethodHandle:
		return poolKey{tag: TagMethodHandle, a: uint16(c.ReferenceKind), b: c.ReferenceIndex}
	case *ConstantMethodType:
		return poolKey{tag: TagMethodType, a: c.DescriptorIndex}
	case *ConstantDynamic:
		return poolKey{tag: c.Kind, a: c.BootstrapMethodAttrIndex, b: c.NameAndTypeIndex}
	case *ConstantModule:
		return poolKey{tag: c.Kind, a: c.NameIndex}
	}
	return poolKey{tag: entry.Tag()}
}

func (p *Pool) add(entry ConstantPoolEntry) (uint16, error) {
	key := keyOf(entry)
	if idx, ok := p.lookup[key]; ok {
		return idx, nil
	}
	width := 1
	if key.tag == TagLong || key.tag == TagDouble {
		width = 2
	}
	if len(p.cf.ConstantPool)+width > 0xFFFF {
		return 0, ErrPoolOverflow
	}
	idx := uint16(len(p.cf.ConstantPool))
	p.cf.ConstantPool = append(p.cf.ConstantPool, entry)
	if width == 2 {
		p.cf.ConstantPool = append(p.cf.ConstantPool, nil)
	}
	p.lookup[key] = idx
	return idx, nil
}

// Utf8 returns the index of a CONSTANT_Utf8 entry holding s.
func (p *Pool) Utf8(s string) (uint16, error) {
	return p.add(&ConstantUtf8{Value: s})
}

// Class returns the index of a CONSTANT_Class entry for the internal name.
func (p *Pool) Class(name string) (uint16, error) {
	nameIdx, err := p.Utf8(name)
	if err != nil {
		return 0, err
	}
	return p.add(&ConstantClass{NameIndex: nameIdx})
}

// String returns the index of a CONSTANT_String entry.
func (p *Pool) String(s string) (uint16, error) {
	idx, err := p.Utf8(s)
	if err != nil {
		return 0, err
	}
	return p.add(&ConstantString{StringIndex: idx})
}

func (p *Pool) Integer(v int32) (uint16, error) {
	return p.add(&ConstantInteger{Value: v})
}

func (p *Pool) Float(bits uint32) (uint16, error) {
	return p.add(&ConstantFloat{Bits: bits})
}

func (p *Pool) Long(v int64) (uint16, error) {
	return p.add(&ConstantLong{Value: v})
}

func (p *Pool) Double(bits uint64) (uint16, error) {
	return p.add(&ConstantDouble{Bits: bits})
}

// NameAndType returns the index of a CONSTANT_NameAndType entry.
func (p *Pool) NameAndType(name, desc string) (uint16, error) {
	nameIdx, err := p.Utf8(name)
	if err != nil {
		return 0, err
	}
	descIdx, err := p.Utf8(desc)
	if err != nil {
		return 0, err
	}
	return p.add(&ConstantNameAndType{NameIndex: nameIdx, DescriptorIndex: descIdx})
}

// Member returns the index of a field, method or interface method
// reference, chosen by tag.
func (p *Pool) Member(tag uint8, owner, name, desc string) (uint16, error) {
	classIdx, err := p.Class(owner)
	if err != nil {
		return 0, err
	}
	natIdx, err := p.NameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	switch tag {
	case TagFieldref:
		return p.add(&ConstantFieldref{ClassIndex: classIdx, NameAndTypeIndex: natIdx})
	case TagMethodref:
		return p.add(&ConstantMethodref{ClassIndex: classIdx, NameAndTypeIndex: natIdx})
	case TagInterfaceMethodref:
		return p.add(&ConstantInterfaceMethodref{ClassIndex: classIdx, NameAndTypeIndex: natIdx})
	}
	return 0, fmt.Errorf("tag %d is not a member reference", tag)
}

func (p *Pool) Fieldref(owner, name, desc string) (uint16, error) {
	return p.Member(TagFieldref, owner, name, desc)
}

func (p *Pool) Methodref(owner, name, desc string) (uint16, error) {
	return p.Member(TagMethodref, owner, name, desc)
}

func (p *Pool) InterfaceMethodref(owner, name, desc string) (uint16, error) {
	return p.Member(TagInterfaceMethodref, owner, name, desc)
}
