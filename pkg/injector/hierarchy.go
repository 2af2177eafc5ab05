package injector

import (
	"sync"

	"github.com/daimatz/classpatch/pkg/classfile"
)

const objectClass = "java/lang/Object"

type classEntry struct {
	super       string
	isInterface bool
}

// ClassHierarchy answers common superclass queries by walking the
// super_class chains of classes read through a boundary. Classes the
// boundary cannot provide are taken as direct subclasses of
// java/lang/Object, and any join involving an interface is
// java/lang/Object.
type ClassHierarchy struct {
	boundary Boundary

	mu      sync.Mutex
	classes map[string]classEntry
}

// NewClassHierarchy returns a hierarchy reading classes from b.
func NewClassHierarchy(b Boundary) *ClassHierarchy {
	return &ClassHierarchy{
		boundary: b,
		classes:  make(map[string]classEntry),
	}
}

// CommonSuperClass returns the nearest class both a and b extend. Names
// are internal names.
func (h *ClassHierarchy) CommonSuperClass(a, b string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.lookup(a).isInterface || h.lookup(b).isInterface {
		return objectClass
	}
	ancestors := make(map[string]bool)
	for _, name := range h.chain(a) {
		ancestors[name] = true
	}
	for _, name := range h.chain(b) {
		if ancestors[name] {
			return name
		}
	}
	return objectClass
}

// chain lists name and its superclasses, ending at java/lang/Object.
func (h *ClassHierarchy) chain(name string) []string {
	seen := make(map[string]bool)
	var out []string
	for name != "" && !seen[name] {
		seen[name] = true
		out = append(out, name)
		name = h.lookup(name).super
	}
	return out
}

// lookup returns the cached entry of name, reading it on first use. h.mu
// must be held.
func (h *ClassHierarchy) lookup(name string) classEntry {
	if name == objectClass {
		return classEntry{}
	}
	if e, ok := h.classes[name]; ok {
		return e
	}

	e := classEntry{super: objectClass}
	if data, err := h.boundary.ReadClass(classfile.BinaryName(name)); err == nil {
		if cf, err := classfile.ParseBytes(data); err == nil {
			if super := cf.SuperClassName(); super != "" {
				e.super = super
			}
			e.isInterface = cf.AccessFlags&classfile.AccInterface != 0
		}
	}
	h.classes[name] = e
	return e
}
