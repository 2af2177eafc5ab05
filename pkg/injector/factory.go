package injector

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownKind is returned by BaseFactory for kinds it cannot build.
var ErrUnknownKind = errors.New("unknown object kind")

// ObjectFactory builds domain objects on behalf of patched code. A host
// may install a decorated factory with Core.SetObjectFactory.
type ObjectFactory interface {
	Name() string
	New(kind string, args ...any) (any, error)
}

// Constructor builds one kind of object.
type Constructor func(args ...any) (any, error)

// BaseFactory is the baseline factory: a table of constructors keyed by
// kind.
type BaseFactory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewBaseFactory returns an empty baseline factory.
func NewBaseFactory() *BaseFactory {
	return &BaseFactory{ctors: make(map[string]Constructor)}
}

func (f *BaseFactory) Name() string {
	return "base"
}

// Register adds or replaces the constructor of kind.
func (f *BaseFactory) Register(kind string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[kind] = ctor
}

func (f *BaseFactory) New(kind string, args ...any) (any, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[kind]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrUnknownKind)
	}
	return ctor(args...)
}
