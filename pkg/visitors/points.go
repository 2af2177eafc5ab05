package visitors

import (
	"fmt"
	"strings"
)

// ValidationError reports patch points that were never reached while
// visiting a class. It usually means the host version changed the shape
// of the class.
type ValidationError struct {
	Class   string
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("class %s: patch points not found: %s", e.Class, strings.Join(e.Missing, ", "))
}

// Points tracks which of a fixed set of patch points have been reached.
type Points struct {
	order []string
	hit   map[string]bool
}

// NewPoints registers the expected patch points.
func NewPoints(names ...string) *Points {
	p := &Points{hit: make(map[string]bool, len(names))}
	for _, n := range names {
		if _, ok := p.hit[n]; ok {
			continue
		}
		p.order = append(p.order, n)
		p.hit[n] = false
	}
	return p
}

// Hit marks a point as reached. Unknown names are ignored.
func (p *Points) Hit(name string) {
	if _, ok := p.hit[name]; ok {
		p.hit[name] = true
	}
}

// Reached reports whether the point was hit.
func (p *Points) Reached(name string) bool {
	return p.hit[name]
}

// Missing returns the points not reached yet, in registration order.
func (p *Points) Missing() []string {
	var missing []string
	for _, n := range p.order {
		if !p.hit[n] {
			missing = append(missing, n)
		}
	}
	return missing
}

// Validate returns a *ValidationError naming every missing point of class.
func (p *Points) Validate(class string) error {
	if missing := p.Missing(); len(missing) > 0 {
		return &ValidationError{Class: class, Missing: missing}
	}
	return nil
}
