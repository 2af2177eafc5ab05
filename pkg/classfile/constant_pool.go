package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// parseConstantPool reads constant_pool_count-1 entries from the reader.
// The returned slice is 1-indexed: index 0 is nil, and so is the slot
// following every long and double.
func parseConstantPool(r io.Reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, err)
		}

		switch tag {
		case TagUtf8:
			var length uint16
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, fmt.Errorf("reading Utf8 length at index %d: %w", i, err)
			}
			bytes := make([]byte, length)
			if _, err := io.ReadFull(r, bytes); err != nil {
				return nil, fmt.Errorf("reading Utf8 bytes at index %d: %w", i, err)
			}
			pool[i] = &ConstantUtf8{Value: string(bytes)}

		case TagInteger:
			var val int32
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, fmt.Errorf("reading Integer at index %d: %w", i, err)
			}
			pool[i] = &ConstantInteger{Value: val}

		case TagFloat:
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Float at index %d: %w", i, err)
			}
			pool[i] = &ConstantFloat{Bits: bits}

		case TagLong:
			if i+1 >= count {
				return nil, fmt.Errorf("Long at index %d overruns constant pool", i)
			}
			var val int64
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, fmt.Errorf("reading Long at index %d: %w", i, err)
			}
			pool[i] = &ConstantLong{Value: val}
			i++ // long takes 2 slots

		case TagDouble:
			if i+1 >= count {
				return nil, fmt.Errorf("Double at index %d overruns constant pool", i)
			}
			var bits uint64
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Double at index %d: %w", i, err)
			}
			pool[i] = &ConstantDouble{Bits: bits}
			i++ // double takes 2 slots

		case TagClass:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading Class at index %d: %w", i, err)
			}
			pool[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			var stringIndex uint16
			if err := binary.Read(r, binary.BigEndian, &stringIndex); err != nil {
				return nil, fmt.Errorf("reading String at index %d: %w", i, err)
			}
			pool[i] = &ConstantString{StringIndex: stringIndex}

		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			var ref [2]uint16
			if err := binary.Read(r, binary.BigEndian, &ref); err != nil {
				return nil, fmt.Errorf("reading member ref at index %d: %w", i, err)
			}
			switch tag {
			case TagFieldref:
				pool[i] = &ConstantFieldref{ClassIndex: ref[0], NameAndTypeIndex: ref[1]}
			case TagMethodref:
				pool[i] = &ConstantMethodref{ClassIndex: ref[0], NameAndTypeIndex: ref[1]}
			default:
				pool[i] = &ConstantInterfaceMethodref{ClassIndex: ref[0], NameAndTypeIndex: ref[1]}
			}

		case TagNameAndType:
			var nameIndex, descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading NameAndType name_index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, fmt.Errorf("reading NameAndType descriptor_index at index %d: %w", i, err)
			}
			pool[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		case TagMethodHandle:
			var kind uint8
			var ref uint16
			if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
				return nil, fmt.Errorf("reading MethodHandle kind at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &ref); err != nil {
				return nil, fmt.Errorf("reading MethodHandle reference at index %d: %w", i, err)
			}
			pool[i] = &ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: ref}

		case TagMethodType:
			var descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, fmt.Errorf("reading MethodType at index %d: %w", i, err)
			}
			pool[i] = &ConstantMethodType{DescriptorIndex: descIndex}

		case TagDynamic, TagInvokeDynamic:
			var bsm, nat uint16
			if err := binary.Read(r, binary.BigEndian, &bsm); err != nil {
				return nil, fmt.Errorf("reading Dynamic bootstrap index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &nat); err != nil {
				return nil, fmt.Errorf("reading Dynamic name_and_type_index at index %d: %w", i, err)
			}
			pool[i] = &ConstantDynamic{Kind: tag, BootstrapMethodAttrIndex: bsm, NameAndTypeIndex: nat}

		case TagModule, TagPackage:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading Module/Package at index %d: %w", i, err)
			}
			pool[i] = &ConstantModule{Kind: tag, NameIndex: nameIndex}

		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
	}

	return pool, nil
}

// writeConstant encodes a single pool entry, tag included.
func writeConstant(w io.Writer, entry ConstantPoolEntry) error {
	if err := binary.Write(w, binary.BigEndian, entry.Tag()); err != nil {
		return err
	}
	var body any
	switch c := entry.(type) {
	case *ConstantUtf8:
		if len(c.Value) > 0xFFFF {
			return fmt.Errorf("Utf8 constant too long: %d bytes", len(c.Value))
		}
		if err := binary.Write(w, binary.BigEndian, uint16(len(c.Value))); err != nil {
			return err
		}
		_, err := io.WriteString(w, c.Value)
		return err
	case *ConstantInteger:
		body = c.Value
	case *ConstantFloat:
		body = c.Bits
	case *ConstantLong:
		body = c.Value
	case *ConstantDouble:
		body = c.Bits
	case *ConstantClass:
		body = c.NameIndex
	case *ConstantString:
		body = c.StringIndex
	case *ConstantFieldref:
		body = [2]uint16{c.ClassIndex, c.NameAndTypeIndex}
	case *ConstantMethodref:
		body = [2]uint16{c.ClassIndex, c.NameAndTypeIndex}
	case *ConstantInterfaceMethodref:
		body = [2]uint16{c.ClassIndex, c.NameAndTypeIndex}
	case *ConstantNameAndType:
		body = [2]uint16{c.NameIndex, c.DescriptorIndex}
	case *ConstantMethodHandle:
		if err := binary.Write(w, binary.BigEndian, c.ReferenceKind); err != nil {
			return err
		}
		body = c.ReferenceIndex
	case *ConstantMethodType:
		body = c.DescriptorIndex
	case *ConstantDynamic:
		body = [2]uint16{c.BootstrapMethodAttrIndex, c.NameAndTypeIndex}
	case *ConstantModule:
		body = c.NameIndex
	default:
		return fmt.Errorf("cannot encode constant pool entry %T", entry)
	}
	return binary.Write(w, binary.BigEndian, body)
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", index)
	}
	utf8, ok := pool[index].(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, pool[index].Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	if int(classIndex) >= len(pool) || pool[classIndex] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", classIndex)
	}
	class, ok := pool[classIndex].(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}

// ResolveNameAndType resolves a CONSTANT_NameAndType entry into its name and descriptor.
func ResolveNameAndType(pool []ConstantPoolEntry, index uint16) (string, string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", "", fmt.Errorf("invalid NameAndType index %d", index)
	}
	nat, ok := pool[index].(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not NameAndType", index)
	}
	name, err := GetUtf8(pool, nat.NameIndex)
	if err != nil {
		return "", "", fmt.Errorf("resolving name: %w", err)
	}
	desc, err := GetUtf8(pool, nat.DescriptorIndex)
	if err != nil {
		return "", "", fmt.Errorf("resolving descriptor: %w", err)
	}
	return name, desc, nil
}

// MemberRef holds a resolved field or method reference.
type MemberRef struct {
	Tag        uint8
	ClassName  string
	Name       string
	Descriptor string
}

// MethodRefInfo holds resolved method reference info.
type MethodRefInfo struct {
	ClassName  string
	MethodName string
	Descriptor string
}

// FieldRefInfo holds resolved field reference info.
type FieldRefInfo struct {
	ClassName  string
	FieldName  string
	Descriptor string
}

// ResolveMember resolves any of CONSTANT_Fieldref, CONSTANT_Methodref or
// CONSTANT_InterfaceMethodref.
func ResolveMember(pool []ConstantPoolEntry, index uint16) (*MemberRef, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	var classIndex, natIndex uint16
	switch ref := pool[index].(type) {
	case *ConstantFieldref:
		classIndex, natIndex = ref.ClassIndex, ref.NameAndTypeIndex
	case *ConstantMethodref:
		classIndex, natIndex = ref.ClassIndex, ref.NameAndTypeIndex
	case *ConstantInterfaceMethodref:
		classIndex, natIndex = ref.ClassIndex, ref.NameAndTypeIndex
	default:
		return nil, fmt.Errorf("constant pool index %d is not a member ref (tag=%d)", index, pool[index].Tag())
	}

	className, err := GetClassName(pool, classIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving member class: %w", err)
	}
	name, desc, err := ResolveNameAndType(pool, natIndex)
	if err != nil {
		return nil, err
	}
	return &MemberRef{
		Tag:        pool[index].Tag(),
		ClassName:  className,
		Name:       name,
		Descriptor: desc,
	}, nil
}

// ResolveMethodref resolves a CONSTANT_Methodref entry.
func ResolveMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	ref, err := resolveTagged(pool, index, TagMethodref, "Methodref")
	if err != nil {
		return nil, err
	}
	return &MethodRefInfo{ClassName: ref.ClassName, MethodName: ref.Name, Descriptor: ref.Descriptor}, nil
}

// ResolveInterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func ResolveInterfaceMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	ref, err := resolveTagged(pool, index, TagInterfaceMethodref, "InterfaceMethodref")
	if err != nil {
		return nil, err
	}
	return &MethodRefInfo{ClassName: ref.ClassName, MethodName: ref.Name, Descriptor: ref.Descriptor}, nil
}

// ResolveFieldref resolves a CONSTANT_Fieldref entry.
func ResolveFieldref(pool []ConstantPoolEntry, index uint16) (*FieldRefInfo, error) {
	ref, err := resolveTagged(pool, index, TagFieldref, "Fieldref")
	if err != nil {
		return nil, err
	}
	return &FieldRefInfo{ClassName: ref.ClassName, FieldName: ref.Name, Descriptor: ref.Descriptor}, nil
}

func resolveTagged(pool []ConstantPoolEntry, index uint16, tag uint8, what string) (*MemberRef, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	if pool[index].Tag() != tag {
		return nil, fmt.Errorf("constant pool index %d is not %s", index, what)
	}
	return ResolveMember(pool, index)
}
