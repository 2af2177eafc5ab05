// Package boundary provides class sources and sinks for the injector:
// a class directory, a jar or jmod archive, and an in-memory store.
//
// Class names are binary names ("a.b.C") throughout.
package boundary

import (
	"errors"
	"fmt"
	"sync"

	"github.com/daimatz/classpatch/pkg/classfile"
)

// ErrClassNotFound is returned, wrapped with the class name, when a class
// is not available.
var ErrClassNotFound = errors.New("class not found")

func notFound(name string) error {
	return fmt.Errorf("%s: %w", name, ErrClassNotFound)
}

// slice checks the range passed to InjectClass and copies it.
func slice(data []byte, offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(data) {
		return nil, fmt.Errorf("range [%d:%d] out of bounds for %d bytes", offset, offset+length, len(data))
	}
	out := make([]byte, length)
	copy(out, data[offset:offset+length])
	return out, nil
}

// entryName returns the archive or file path of a class, relative to the
// class root.
func entryName(name string) string {
	return classfile.InternalName(name) + ".class"
}

// Injection is one class received by InjectClass.
type Injection struct {
	Name string
	Data []byte
}

// Memory is a map-backed boundary. Injected classes become readable.
type Memory struct {
	mu         sync.Mutex
	classes    map[string][]byte
	injections []Injection
}

// NewMemory returns a boundary serving a copy of classes.
func NewMemory(classes map[string][]byte) *Memory {
	m := &Memory{classes: make(map[string][]byte, len(classes))}
	for name, data := range classes {
		m.classes[name] = data
	}
	return m
}

// Put stores a class.
func (m *Memory) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[name] = data
}

func (m *Memory) ReadClass(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.classes[name]
	if !ok {
		return nil, notFound(name)
	}
	return data, nil
}

func (m *Memory) InjectClass(name string, data []byte, offset, length int) error {
	b, err := slice(data, offset, length)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[name] = b
	m.injections = append(m.injections, Injection{Name: name, Data: b})
	return nil
}

// Injections returns the injected classes in order.
func (m *Memory) Injections() []Injection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Injection(nil), m.injections...)
}
