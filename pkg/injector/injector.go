// Package injector drives the patching of the WorldEdit classes: each
// target class is read from the boundary, rewritten by its visitor,
// validated, serialized and injected back. Failures are isolated per
// class and reported through the platform log.
package injector

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/daimatz/classpatch/pkg/bytecode"
)

// Version is the injector version reported to hosts.
const Version = "1.0600"

// Option configures a Core.
type Option func(*Core)

// WithTargets replaces the default target classes.
func WithTargets(targets []Target) Option {
	return func(c *Core) {
		c.targets = targets
	}
}

// WithDumpDir writes every class to dir/<name>.class before injecting
// it. An empty dir disables the dump.
func WithDumpDir(dir string) Option {
	return func(c *Core) {
		c.dumpDir = dir
	}
}

// WithHierarchy sets the class hierarchy used when stack map frames are
// recomputed.
func WithHierarchy(h bytecode.Hierarchy) Option {
	return func(c *Core) {
		c.hierarchy = h
	}
}

// WithLogger sets the logger receiving debug events. The platform log
// is not affected.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Core) {
		c.logger = log
	}
}

type factoryHolder struct {
	f ObjectFactory
}

// Core binds a platform once and patches the target classes.
type Core struct {
	targets   []Target
	dumpDir   string
	hierarchy bytecode.Hierarchy
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	platform Platform
	boundary Boundary

	factory atomic.Pointer[factoryHolder]
}

// New returns an unbound core.
func New(opts ...Option) *Core {
	c := &Core{
		targets: DefaultTargets(),
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.factory.Store(&factoryHolder{f: NewBaseFactory()})
	return c
}

var (
	defaultOnce sync.Once
	defaultCore *Core
)

// Default returns the process-wide core, created on first use.
func Default() *Core {
	defaultOnce.Do(func() {
		defaultCore = New()
	})
	return defaultCore
}

// Version returns the injector version.
func (c *Core) Version() string {
	return Version
}

// Platform returns the bound platform, or nil.
func (c *Core) Platform() Platform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.platform
}

// Initialize binds the platform and the boundary and patches every
// target class. Only the first call does anything; later calls are
// logged and rejected. Initialize never fails: per-class failures are
// logged and returned in the report.
func (c *Core) Initialize(platform Platform, boundary Boundary) *Report {
	c.mu.Lock()
	if c.platform != nil {
		bound := c.platform
		bound.Log(fmt.Sprintf("Injector platform is already set to %s. Ignoring new platform %s",
			bound.Name(), platform.Name()))
		c.mu.Unlock()
		return &Report{Platform: platform.Name(), Rejected: true}
	}
	c.platform = platform
	c.boundary = boundary
	platform.Log("Injector platform set to: " + platform.Name())
	c.mu.Unlock()

	report := &Report{Platform: platform.Name()}
	platform.Log("Injecting WorldEdit classes...")
	for _, t := range c.targets {
		res := c.transformClass(platform, boundary, t)
		if res.Err != nil {
			logFailure(platform, res)
		}
		report.Results = append(report.Results, res)
	}
	c.logger.Debugw("injection finished",
		"platform", platform.Name(),
		"injected", len(report.Injected()),
		"failed", len(report.Failed()),
	)
	return report
}

// SetObjectFactory installs f, or the baseline factory when f is nil.
func (c *Core) SetObjectFactory(f ObjectFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f == nil {
		f = NewBaseFactory()
		c.log("New class factory set to default factory.")
	} else {
		c.log("New class factory set to: " + f.Name())
	}
	c.factory.Store(&factoryHolder{f: f})
}

// ObjectFactory returns the active factory. It never returns nil.
func (c *Core) ObjectFactory() ObjectFactory {
	return c.factory.Load().f
}

// log writes to the bound platform, if any. c.mu must be held.
func (c *Core) log(message string) {
	if c.platform != nil {
		c.platform.Log(message)
	}
}
