package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serializes a ClassFile back into the binary class format. For a
// ClassFile produced by Parse and left untouched, the output equals the
// parsed input byte for byte.
func Encode(cf *ClassFile) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := cf.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo implements io.WriterTo.
func (cf *ClassFile) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	binary.Write(&buf, binary.BigEndian, uint32(classMagic))
	binary.Write(&buf, binary.BigEndian, cf.MinorVersion)
	binary.Write(&buf, binary.BigEndian, cf.MajorVersion)

	if len(cf.ConstantPool) == 0 || len(cf.ConstantPool) > 0xFFFF {
		return 0, fmt.Errorf("invalid constant pool size %d", len(cf.ConstantPool))
	}
	binary.Write(&buf, binary.BigEndian, uint16(len(cf.ConstantPool)))
	for i := 1; i < len(cf.ConstantPool); i++ {
		entry := cf.ConstantPool[i]
		if entry == nil {
			return 0, fmt.Errorf("constant pool index %d is empty", i)
		}
		if err := writeConstant(&buf, entry); err != nil {
			return 0, fmt.Errorf("writing constant %d: %w", i, err)
		}
		if tag := entry.Tag(); tag == TagLong || tag == TagDouble {
			i++
		}
	}

	binary.Write(&buf, binary.BigEndian, cf.AccessFlags)
	binary.Write(&buf, binary.BigEndian, cf.ThisClass)
	binary.Write(&buf, binary.BigEndian, cf.SuperClass)
	binary.Write(&buf, binary.BigEndian, uint16(len(cf.Interfaces)))
	binary.Write(&buf, binary.BigEndian, cf.Interfaces)

	binary.Write(&buf, binary.BigEndian, uint16(len(cf.Fields)))
	for i := range cf.Fields {
		f := &cf.Fields[i]
		if err := writeMember(&buf, member(*f)); err != nil {
			return 0, fmt.Errorf("writing field %s: %w", f.Name, err)
		}
	}

	binary.Write(&buf, binary.BigEndian, uint16(len(cf.Methods)))
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if err := writeMember(&buf, member(*m)); err != nil {
			return 0, fmt.Errorf("writing method %s: %w", m.Name, err)
		}
	}

	if err := writeAttributes(&buf, cf.Attributes); err != nil {
		return 0, fmt.Errorf("writing class attributes: %w", err)
	}

	return buf.WriteTo(w)
}

func writeMember(buf *bytes.Buffer, m member) error {
	binary.Write(buf, binary.BigEndian, m.AccessFlags)
	binary.Write(buf, binary.BigEndian, m.NameIndex)
	binary.Write(buf, binary.BigEndian, m.DescriptorIndex)
	return writeAttributes(buf, m.Attributes)
}

func writeAttributes(buf *bytes.Buffer, attrs []AttributeInfo) error {
	if len(attrs) > 0xFFFF {
		return fmt.Errorf("too many attributes: %d", len(attrs))
	}
	binary.Write(buf, binary.BigEndian, uint16(len(attrs)))
	for _, a := range attrs {
		if a.NameIndex == 0 {
			return fmt.Errorf("attribute %q has no name index", a.Name)
		}
		binary.Write(buf, binary.BigEndian, a.NameIndex)
		binary.Write(buf, binary.BigEndian, uint32(len(a.Data)))
		buf.Write(a.Data)
	}
	return nil
}
