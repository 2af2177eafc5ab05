package classfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// helloClass assembles the equivalent of
//
//	public class Hello { public static void main(String[] a) { System.out.println("hi"); } }
func helloClass(t *testing.T) []byte {
	t.Helper()

	cf := &ClassFile{MajorVersion: 52, AccessFlags: AccPublic | AccSuper}
	p := NewPool(cf)
	must := func(idx uint16, err error) uint16 {
		t.Helper()
		if err != nil {
			t.Fatalf("pool: %v", err)
		}
		return idx
	}
	cf.ThisClass = must(p.Class("Hello"))
	cf.SuperClass = must(p.Class("java/lang/Object"))
	out := must(p.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;"))
	hi := must(p.String("hi"))
	println := must(p.Methodref("java/io/PrintStream", "println", "(Ljava/lang/String;)V"))

	body := &Code{
		MaxStack:  2,
		MaxLocals: 1,
		Code: []byte{
			0xB2, byte(out >> 8), byte(out), // getstatic
			0x12, byte(hi), // ldc
			0xB6, byte(println >> 8), byte(println), // invokevirtual
			0xB1, // return
		},
	}
	data, err := body.Encode()
	if err != nil {
		t.Fatalf("encoding code: %v", err)
	}
	cf.Methods = append(cf.Methods, MethodInfo{
		AccessFlags:     AccPublic | AccStatic,
		NameIndex:       must(p.Utf8("main")),
		DescriptorIndex: must(p.Utf8("([Ljava/lang/String;)V")),
		Attributes: []AttributeInfo{{
			NameIndex: must(p.Utf8(AttrCode)),
			Name:      AttrCode,
			Data:      data,
		}},
	})

	b, err := Encode(cf)
	if err != nil {
		t.Fatalf("encoding class: %v", err)
	}
	return b
}

func TestParseClassFile(t *testing.T) {
	cf, err := ParseBytes(helloClass(t))
	if err != nil {
		t.Fatalf("failed to parse Hello: %v", err)
	}

	if cf.MajorVersion != 52 {
		t.Errorf("major version: got %d, want 52", cf.MajorVersion)
	}

	className, err := cf.ClassName()
	if err != nil {
		t.Fatalf("resolving this_class: %v", err)
	}
	if className != "Hello" {
		t.Errorf("this_class: got %q, want %q", className, "Hello")
	}
	if super := cf.SuperClassName(); super != "java/lang/Object" {
		t.Errorf("super_class: got %q, want %q", super, "java/lang/Object")
	}

	mainMethod := cf.FindMethod("main", "([Ljava/lang/String;)V")
	if mainMethod == nil {
		t.Fatal("main method not found")
	}
	code, err := mainMethod.Code(cf.ConstantPool)
	if err != nil {
		t.Fatalf("decoding Code: %v", err)
	}
	if code == nil {
		t.Fatal("main method has no Code attribute")
	}
	if len(code.Code) != 9 {
		t.Errorf("code length: got %d, want 9", len(code.Code))
	}
	if code.MaxStack != 2 || code.MaxLocals != 1 {
		t.Errorf("max stack/locals: got %d/%d, want 2/1", code.MaxStack, code.MaxLocals)
	}

	ref, err := ResolveMember(cf.ConstantPool, uint16(code.Code[6])<<8|uint16(code.Code[7]))
	if err != nil {
		t.Fatalf("resolving invokevirtual operand: %v", err)
	}
	if ref.ClassName != "java/io/PrintStream" || ref.Name != "println" {
		t.Errorf("invokevirtual target: got %s.%s", ref.ClassName, ref.Name)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	b := helloClass(t)
	cf, err := ParseBytes(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Encode(cf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(b, out) {
		t.Errorf("round trip changed the class:\n got %x\nwant %x", out, b)
	}
}

func TestParseTruncated(t *testing.T) {
	b := helloClass(t)
	for _, n := range []int{0, 4, 9, len(b) / 2, len(b) - 1} {
		if _, err := ParseBytes(b[:n]); err == nil {
			t.Errorf("parsing %d of %d bytes: expected error", n, len(b))
		}
	}
	if _, err := ParseBytes(append(b, 0)); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestParseInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.class")
	if err := os.WriteFile(path, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}

	_, err := ParseFile(path)
	if err == nil {
		t.Error("expected error for invalid magic number, got nil")
	}
}

// handAssembled is a class written byte by byte: wide constants, NaN
// bit patterns, a modified-UTF-8 NUL, a method handle, an invokedynamic
// and an unknown class attribute.
var handAssembled = []byte{
	0xCA, 0xFE, 0xBA, 0xBE, // magic
	0x00, 0x00, 0x00, 0x34, // 0.52
	0x00, 0x12, // constant_pool_count 18
	0x01, 0x00, 0x01, 'A', // #1 Utf8 "A"
	0x07, 0x00, 0x01, // #2 Class #1
	0x01, 0x00, 0x10, 'j', 'a', 'v', 'a', '/', 'l', 'a', 'n', 'g', '/', 'O', 'b', 'j', 'e', 'c', 't', // #3
	0x07, 0x00, 0x03, // #4 Class #3
	0x05, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, // #5 Long, #6 unusable
	0x06, 0x7F, 0xF8, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, // #7 Double NaN, #8 unusable
	0x04, 0x7F, 0xC0, 0x00, 0x01, // #9 Float NaN
	0x01, 0x00, 0x03, 'a', 0xC0, 0x80, // #10 Utf8 "a\0"
	0x01, 0x00, 0x01, 'm', // #11
	0x01, 0x00, 0x03, '(', ')', 'V', // #12
	0x0C, 0x00, 0x0B, 0x00, 0x0C, // #13 NameAndType m ()V
	0x0A, 0x00, 0x04, 0x00, 0x0D, // #14 Methodref Object.m
	0x0F, 0x06, 0x00, 0x0E, // #15 MethodHandle invokestatic #14
	0x12, 0x00, 0x00, 0x00, 0x0D, // #16 InvokeDynamic bsm 0, #13
	0x01, 0x00, 0x06, 'C', 'u', 's', 't', 'o', 'm', // #17
	0x00, 0x21, // ACC_PUBLIC | ACC_SUPER
	0x00, 0x02, // this_class
	0x00, 0x04, // super_class
	0x00, 0x00, // interfaces
	0x00, 0x00, // fields
	0x00, 0x00, // methods
	0x00, 0x01, // attributes
	0x00, 0x11, 0x00, 0x00, 0x00, 0x03, 0x01, 0x02, 0x03, // Custom
}

func TestParseHandAssembled(t *testing.T) {
	cf, err := ParseBytes(handAssembled)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pool := cf.ConstantPool
	if len(pool) != 18 {
		t.Fatalf("pool length: got %d, want 18", len(pool))
	}

	if l, ok := pool[5].(*ConstantLong); !ok || l.Value != 0x0102030405060708 {
		t.Errorf("#5: got %#v", pool[5])
	}
	if pool[6] != nil || pool[8] != nil {
		t.Error("second slots of long and double must be empty")
	}
	if d, ok := pool[7].(*ConstantDouble); !ok || d.Bits != 0x7FF8000000000001 {
		t.Errorf("#7: got %#v", pool[7])
	}
	if f, ok := pool[9].(*ConstantFloat); !ok || f.Bits != 0x7FC00001 {
		t.Errorf("#9: got %#v", pool[9])
	}
	if s, err := GetUtf8(pool, 10); err != nil || s != "a\xC0\x80" {
		t.Errorf("#10: got %q, %v", s, err)
	}
	if h, ok := pool[15].(*ConstantMethodHandle); !ok || h.ReferenceKind != 6 || h.ReferenceIndex != 14 {
		t.Errorf("#15: got %#v", pool[15])
	}
	if d, ok := pool[16].(*ConstantDynamic); !ok || d.Tag() != TagInvokeDynamic || d.NameAndTypeIndex != 13 {
		t.Errorf("#16: got %#v", pool[16])
	}

	attr := cf.Attribute("Custom")
	if attr == nil || !bytes.Equal(attr.Data, []byte{1, 2, 3}) {
		t.Errorf("Custom attribute: got %#v", attr)
	}

	out, err := Encode(cf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(out, handAssembled) {
		t.Errorf("round trip changed the class:\n got %x\nwant %x", out, handAssembled)
	}
}
