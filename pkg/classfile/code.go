package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Code represents the Code attribute of a method.
type Code struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte
	ExceptionHandlers []ExceptionHandler
	Attributes        []AttributeInfo
}

// Attribute returns the first nested attribute with the given name, or nil.
func (c *Code) Attribute(name string) *AttributeInfo {
	return findAttribute(c.Attributes, name)
}

// ParseCode decodes the body of a Code attribute.
func ParseCode(data []byte, pool []ConstantPoolEntry) (*Code, error) {
	r := bytes.NewReader(data)

	var header struct {
		MaxStack   uint16
		MaxLocals  uint16
		CodeLength uint32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}
	if header.CodeLength == 0 || int64(header.CodeLength) > int64(r.Len()) {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", header.CodeLength)
	}

	code := make([]byte, header.CodeLength)
	if _, err := r.Read(code); err != nil {
		return nil, fmt.Errorf("reading bytecode: %w", err)
	}

	var exTableLen uint16
	if err := binary.Read(r, binary.BigEndian, &exTableLen); err != nil {
		return nil, fmt.Errorf("reading exception table length: %w", err)
	}
	handlers := make([]ExceptionHandler, exTableLen)
	if err := binary.Read(r, binary.BigEndian, handlers); err != nil {
		return nil, fmt.Errorf("reading exception table: %w", err)
	}

	var attrCount uint16
	if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
		return nil, fmt.Errorf("reading Code attributes count: %w", err)
	}
	attrs, err := parseAttributeInfos(r, pool, attrCount)
	if err != nil {
		return nil, fmt.Errorf("parsing Code attributes: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes in Code attribute", r.Len())
	}

	return &Code{
		MaxStack:          header.MaxStack,
		MaxLocals:         header.MaxLocals,
		Code:              code,
		ExceptionHandlers: handlers,
		Attributes:        attrs,
	}, nil
}

// Encode serializes the Code attribute body (without the attribute header).
func (c *Code) Encode() ([]byte, error) {
	var buf bytes.Buffer
	header := struct {
		MaxStack   uint16
		MaxLocals  uint16
		CodeLength uint32
	}{c.MaxStack, c.MaxLocals, uint32(len(c.Code))}
	if len(c.Code) == 0 || len(c.Code) > 0xFFFF {
		return nil, fmt.Errorf("invalid code length %d", len(c.Code))
	}
	if len(c.ExceptionHandlers) > 0xFFFF {
		return nil, fmt.Errorf("too many exception handlers: %d", len(c.ExceptionHandlers))
	}

	binary.Write(&buf, binary.BigEndian, header)
	buf.Write(c.Code)
	binary.Write(&buf, binary.BigEndian, uint16(len(c.ExceptionHandlers)))
	binary.Write(&buf, binary.BigEndian, c.ExceptionHandlers)
	if err := writeAttributes(&buf, c.Attributes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
