package classwriter

import (
	"fmt"

	"github.com/daimatz/classpatch/pkg/bytecode"
	"github.com/daimatz/classpatch/pkg/classfile"
)

// Field is a field of the class being written.
type Field struct {
	w    *Writer
	info classfile.FieldInfo
}

func (f *Field) Name() string       { return f.info.Name }
func (f *Field) Descriptor() string { return f.info.Descriptor }
func (f *Field) Access() uint16     { return f.info.AccessFlags }

// Writer returns the class the field belongs to.
func (f *Field) Writer() *Writer { return f.w }

func (f *Field) SetAccess(access uint16) {
	f.info.AccessFlags = access
}

// SetDescriptor changes the declared type of the field. Accesses to the
// field are not rewritten.
func (f *Field) SetDescriptor(desc string) error {
	idx, err := f.w.pool.Utf8(desc)
	if err != nil {
		return err
	}
	f.info.DescriptorIndex = idx
	f.info.Descriptor = desc
	return nil
}

// Method is a method of the class being written.
type Method struct {
	w    *Writer
	info classfile.MethodInfo
	// code is non-nil once the body has been decoded for editing or was
	// supplied by AddMethod.
	code *bytecode.Code
}

func (m *Method) Name() string       { return m.info.Name }
func (m *Method) Descriptor() string { return m.info.Descriptor }
func (m *Method) Access() uint16     { return m.info.AccessFlags }

// Writer returns the class the method belongs to.
func (m *Method) Writer() *Writer { return m.w }

func (m *Method) SetAccess(access uint16) {
	m.info.AccessFlags = access
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool {
	return m.info.AccessFlags&classfile.AccStatic != 0
}

// HasCode reports whether the method has a body.
func (m *Method) HasCode() bool {
	return m.code != nil || m.info.Attribute(classfile.AttrCode) != nil
}

// Modified reports whether the body will be recompiled by Bytes.
func (m *Method) Modified() bool {
	return m.code != nil
}

// Instructions decodes the method body for editing. The body is
// recompiled on serialization from then on.
func (m *Method) Instructions() (*bytecode.Code, error) {
	if m.code != nil {
		return m.code, nil
	}
	raw, err := m.info.Code(m.w.pool.Entries())
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("method %s%s has no code", m.info.Name, m.info.Descriptor)
	}
	code, err := bytecode.Decode(raw)
	if err != nil {
		return nil, err
	}
	m.code = code
	return code, nil
}

// Peek decodes the body for inspection without scheduling it for
// recompilation. Edits to the returned code are discarded unless the
// method was already opened with Instructions.
func (m *Method) Peek() (*bytecode.Code, error) {
	if m.code != nil {
		return m.code, nil
	}
	raw, err := m.info.Code(m.w.pool.Entries())
	if err != nil || raw == nil {
		return nil, err
	}
	return bytecode.Decode(raw)
}

func (m *Method) compile(hierarchy bytecode.Hierarchy) error {
	out, err := bytecode.Compile(m.code, bytecode.Env{
		Pool:         m.w.pool,
		Owner:        m.w.name,
		Access:       m.info.AccessFlags,
		Name:         m.info.Name,
		Descriptor:   m.info.Descriptor,
		MajorVersion: m.w.cf.MajorVersion,
		Hierarchy:    hierarchy,
	})
	if err != nil {
		return err
	}
	data, err := out.Encode()
	if err != nil {
		return err
	}

	for i := range m.info.Attributes {
		if m.info.Attributes[i].Name == classfile.AttrCode {
			m.info.Attributes[i].Data = data
			return nil
		}
	}
	nameIdx, err := m.w.pool.Utf8(classfile.AttrCode)
	if err != nil {
		return err
	}
	m.info.Attributes = append(m.info.Attributes, classfile.AttributeInfo{
		NameIndex: nameIdx,
		Name:      classfile.AttrCode,
		Data:      data,
	})
	return nil
}
