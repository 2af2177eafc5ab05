// Package classwriter wraps a decoded class, lets visitors rewrite its
// members and serializes the result, recomputing max stack, max locals
// and stack map frames for every method body that was touched.
package classwriter

import (
	"fmt"

	"github.com/daimatz/classpatch/pkg/bytecode"
	"github.com/daimatz/classpatch/pkg/classfile"
)

// DefaultMajorVersion is used by NewClass (Java 8).
const DefaultMajorVersion = 52

// ClassCreator receives auxiliary classes synthesized while a class is
// being rewritten. name is the binary class name.
type ClassCreator func(name string, w *Writer) error

// Visitor is called by Accept for every member of the class.
type Visitor interface {
	VisitField(f *Field) error
	VisitMethod(m *Method) error
	VisitEnd(w *Writer) error
}

// Option configures a Writer.
type Option func(*Writer)

// WithHierarchy sets the class hierarchy used to merge reference types
// while computing frames.
func WithHierarchy(h bytecode.Hierarchy) Option {
	return func(w *Writer) {
		w.hierarchy = h
	}
}

// Writer accumulates edits to one class.
type Writer struct {
	cf        *classfile.ClassFile
	pool      *classfile.Pool
	name      string
	hierarchy bytecode.Hierarchy

	fields  []*Field
	methods []*Method
}

// New wraps a parsed class. The class file is owned by the writer from
// now on.
func New(cf *classfile.ClassFile, opts ...Option) (*Writer, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, fmt.Errorf("resolving class name: %w", err)
	}
	w := &Writer{
		cf:   cf,
		pool: classfile.NewPool(cf),
		name: name,
	}
	for _, opt := range opts {
		opt(w)
	}
	for i := range cf.Fields {
		w.fields = append(w.fields, &Field{w: w, info: cf.Fields[i]})
	}
	for i := range cf.Methods {
		w.methods = append(w.methods, &Method{w: w, info: cf.Methods[i]})
	}
	return w, nil
}

// NewClass synthesizes an empty class. Names are internal names
// ("a/b/C"); an empty super means java/lang/Object.
func NewClass(access uint16, name, super string, interfaces ...string) (*Writer, error) {
	if super == "" {
		super = "java/lang/Object"
	}
	cf := &classfile.ClassFile{
		MajorVersion: DefaultMajorVersion,
		AccessFlags:  access,
	}
	pool := classfile.NewPool(cf)
	var err error
	if cf.ThisClass, err = pool.Class(name); err != nil {
		return nil, err
	}
	if cf.SuperClass, err = pool.Class(super); err != nil {
		return nil, err
	}
	for _, iface := range interfaces {
		idx, err := pool.Class(iface)
		if err != nil {
			return nil, err
		}
		cf.Interfaces = append(cf.Interfaces, idx)
	}
	return &Writer{cf: cf, pool: pool, name: name}, nil
}

// Name returns the internal name of the class.
func (w *Writer) Name() string {
	return w.name
}

// SuperName returns the internal name of the superclass, or "" for
// java/lang/Object.
func (w *Writer) SuperName() string {
	return w.cf.SuperClassName()
}

func (w *Writer) Access() uint16 {
	return w.cf.AccessFlags
}

func (w *Writer) SetAccess(access uint16) {
	w.cf.AccessFlags = access
}

// Version returns the class file major version.
func (w *Writer) Version() uint16 {
	return w.cf.MajorVersion
}

// SetVersion sets the class file version.
func (w *Writer) SetVersion(major, minor uint16) {
	w.cf.MajorVersion = major
	w.cf.MinorVersion = minor
}

// Pool returns the constant pool builder of the class.
func (w *Writer) Pool() *classfile.Pool {
	return w.pool
}

// ResolveMember resolves a field or method reference of this class's pool.
func (w *Writer) ResolveMember(index int) (*classfile.MemberRef, error) {
	if index < 0 || index > 0xFFFF {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	return classfile.ResolveMember(w.pool.Entries(), uint16(index))
}

// Fields returns the fields in declaration order.
func (w *Writer) Fields() []*Field {
	return w.fields
}

// Methods returns the methods in declaration order.
func (w *Writer) Methods() []*Method {
	return w.methods
}

// FindField returns the field with the given name and descriptor, or nil.
func (w *Writer) FindField(name, desc string) *Field {
	for _, f := range w.fields {
		if f.info.Name == name && f.info.Descriptor == desc {
			return f
		}
	}
	return nil
}

// FindMethod returns the method with the given name and descriptor, or nil.
func (w *Writer) FindMethod(name, desc string) *Method {
	for _, m := range w.methods {
		if m.info.Name == name && m.info.Descriptor == desc {
			return m
		}
	}
	return nil
}

// AddField appends a new field.
func (w *Writer) AddField(access uint16, name, desc string) (*Field, error) {
	if w.FindField(name, desc) != nil {
		return nil, fmt.Errorf("field %s %s already exists in %s", name, desc, w.name)
	}
	nameIdx, descIdx, err := w.nameAndDescriptor(name, desc)
	if err != nil {
		return nil, err
	}
	f := &Field{w: w, info: classfile.FieldInfo{
		AccessFlags:     access,
		NameIndex:       nameIdx,
		DescriptorIndex: descIdx,
		Name:            name,
		Descriptor:      desc,
	}}
	w.fields = append(w.fields, f)
	return f, nil
}

// AddMethod appends a new method. code is nil for abstract and native
// methods.
func (w *Writer) AddMethod(access uint16, name, desc string, code *bytecode.Code) (*Method, error) {
	if w.FindMethod(name, desc) != nil {
		return nil, fmt.Errorf("method %s%s already exists in %s", name, desc, w.name)
	}
	if _, err := classfile.ParseMethodDescriptor(desc); err != nil {
		return nil, err
	}
	nameIdx, descIdx, err := w.nameAndDescriptor(name, desc)
	if err != nil {
		return nil, err
	}
	m := &Method{w: w, code: code, info: classfile.MethodInfo{
		AccessFlags:     access,
		NameIndex:       nameIdx,
		DescriptorIndex: descIdx,
		Name:            name,
		Descriptor:      desc,
	}}
	w.methods = append(w.methods, m)
	return m, nil
}

func (w *Writer) nameAndDescriptor(name, desc string) (uint16, uint16, error) {
	nameIdx, err := w.pool.Utf8(name)
	if err != nil {
		return 0, 0, err
	}
	descIdx, err := w.pool.Utf8(desc)
	if err != nil {
		return 0, 0, err
	}
	return nameIdx, descIdx, nil
}

// Accept walks fields, then methods, then calls VisitEnd. Members added
// during the walk are not visited.
func (w *Writer) Accept(v Visitor) error {
	for _, f := range append([]*Field(nil), w.fields...) {
		if err := v.VisitField(f); err != nil {
			return fmt.Errorf("visiting field %s: %w", f.Name(), err)
		}
	}
	for _, m := range append([]*Method(nil), w.methods...) {
		if err := v.VisitMethod(m); err != nil {
			return fmt.Errorf("visiting method %s%s: %w", m.Name(), m.Descriptor(), err)
		}
	}
	return v.VisitEnd(w)
}

// Bytes serializes the class. Method bodies obtained through
// Instructions are recompiled; everything else is written as read.
// Calling Bytes repeatedly yields identical output.
func (w *Writer) Bytes() ([]byte, error) {
	hierarchy := w.hierarchy
	if hierarchy == nil {
		hierarchy = &superHierarchy{name: w.name, super: w.SuperName()}
	}

	// Bodies are compiled first: compiling may add constants, and the
	// pool is written ahead of the members.
	methods := make([]classfile.MethodInfo, len(w.methods))
	for i, m := range w.methods {
		if m.code != nil {
			if err := m.compile(hierarchy); err != nil {
				return nil, fmt.Errorf("%s.%s%s: %w", w.name, m.Name(), m.Descriptor(), err)
			}
		}
		methods[i] = m.info
	}
	fields := make([]classfile.FieldInfo, len(w.fields))
	for i, f := range w.fields {
		fields[i] = f.info
	}

	w.cf.Fields = fields
	w.cf.Methods = methods
	return classfile.Encode(w.cf)
}

// superHierarchy knows this class's direct superclass and answers
// java/lang/Object for everything else.
type superHierarchy struct {
	name, super string
}

func (h *superHierarchy) CommonSuperClass(a, b string) string {
	if h.super != "" && ((a == h.name && b == h.super) || (a == h.super && b == h.name)) {
		return h.super
	}
	return "java/lang/Object"
}
