package classfile

import (
	"fmt"
	"strings"
)

// MethodDescriptor is a parsed method descriptor such as "(ILjava/lang/String;)V".
type MethodDescriptor struct {
	Params []string
	Return string
}

// ParseMethodDescriptor splits a method descriptor into field descriptors.
func ParseMethodDescriptor(desc string) (*MethodDescriptor, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, fmt.Errorf("invalid method descriptor %q", desc)
	}
	md := &MethodDescriptor{}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldDescriptorLen(desc[i:])
		if err != nil {
			return nil, fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		md.Params = append(md.Params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, fmt.Errorf("invalid method descriptor %q: missing ')'", desc)
	}
	ret := desc[i+1:]
	if ret != "V" {
		n, err := fieldDescriptorLen(ret)
		if err != nil || n != len(ret) {
			return nil, fmt.Errorf("invalid return type in method descriptor %q", desc)
		}
	}
	md.Return = ret
	return md, nil
}

// String reassembles the descriptor.
func (md *MethodDescriptor) String() string {
	return "(" + strings.Join(md.Params, "") + ")" + md.Return
}

// ArgumentSlots returns the number of local variable slots taken by the
// parameters, not counting the receiver.
func (md *MethodDescriptor) ArgumentSlots() int {
	n := 0
	for _, p := range md.Params {
		n += SlotSize(p)
	}
	return n
}

func fieldDescriptorLen(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0, fmt.Errorf("truncated descriptor")
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 2 {
			return 0, fmt.Errorf("unterminated class type in %q", s)
		}
		return i + end + 1, nil
	}
	return 0, fmt.Errorf("unexpected descriptor character %q", s[i])
}

// SlotSize returns the operand stack / local variable width of a field
// descriptor: 2 for long and double, 0 for void, 1 otherwise.
func SlotSize(desc string) int {
	switch desc {
	case "J", "D":
		return 2
	case "V", "":
		return 0
	}
	return 1
}

// InternalName converts a binary name ("a.b.C") into internal form ("a/b/C").
func InternalName(binaryName string) string {
	return strings.ReplaceAll(binaryName, ".", "/")
}

// BinaryName converts an internal name ("a/b/C") into binary form ("a.b.C").
func BinaryName(internalName string) string {
	return strings.ReplaceAll(internalName, "/", ".")
}

// ObjectDescriptor returns the field descriptor of an internal class name.
// Array names are already descriptors and are returned unchanged.
func ObjectDescriptor(internalName string) string {
	if strings.HasPrefix(internalName, "[") {
		return internalName
	}
	return "L" + internalName + ";"
}
