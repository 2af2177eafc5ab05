// Package visitors holds the structural visitors that patch the host
// classes, and the rewrite rules they are built from.
package visitors

import (
	"fmt"

	"github.com/daimatz/classpatch/pkg/classfile"
	"github.com/daimatz/classpatch/pkg/classwriter"
)

// Visitor applies a fixed list of rules to one class and remembers which
// of them found their member.
type Visitor struct {
	class  string
	writer *classwriter.Writer
	create classwriter.ClassCreator
	rules  []Rule
	points *Points

	retyped   []RetypeField
	hookOrder []string
	hooks     map[string][]hookMethod
}

type hookMethod struct {
	name, desc string
}

// New returns a visitor for the class with the given binary name. create
// may be nil when none of the rules synthesizes classes.
func New(class string, w *classwriter.Writer, create classwriter.ClassCreator, rules ...Rule) *Visitor {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Point()
	}
	return &Visitor{
		class:  class,
		writer: w,
		create: create,
		rules:  rules,
		points: NewPoints(names...),
		hooks:  make(map[string][]hookMethod),
	}
}

// Class returns the binary name of the visited class.
func (v *Visitor) Class() string {
	return v.class
}

// Points exposes the patch point tracker.
func (v *Visitor) Points() *Points {
	return v.points
}

func (v *Visitor) VisitField(f *classwriter.Field) error {
	for _, r := range v.rules {
		fr, ok := r.(fieldRule)
		if !ok {
			continue
		}
		hit, err := fr.applyField(v, f)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Point(), err)
		}
		if hit {
			v.points.Hit(r.Point())
		}
	}
	return nil
}

func (v *Visitor) VisitMethod(m *classwriter.Method) error {
	for _, r := range v.rules {
		mr, ok := r.(methodRule)
		if !ok {
			continue
		}
		hit, err := mr.applyMethod(v, m)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Point(), err)
		}
		if hit {
			v.points.Hit(r.Point())
		}
	}
	return nil
}

// VisitEnd rewrites accesses to retyped fields and emits the hook
// interfaces. Hooks are only emitted when every patch point was reached,
// so a class that fails validation leaves nothing behind.
func (v *Visitor) VisitEnd(w *classwriter.Writer) error {
	for _, r := range v.retyped {
		if err := r.rewriteAccesses(w); err != nil {
			return fmt.Errorf("%s: %w", r.Point(), err)
		}
	}
	if len(v.points.Missing()) > 0 || len(v.hookOrder) == 0 {
		return nil
	}
	if v.create == nil {
		return fmt.Errorf("class %s needs hook classes but no class creator was given", v.class)
	}
	for _, hook := range v.hookOrder {
		hw, err := classwriter.NewClass(classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract, hook, "")
		if err != nil {
			return err
		}
		hw.SetVersion(w.Version(), 0)
		for _, m := range v.hooks[hook] {
			if _, err := hw.AddMethod(classfile.AccPublic|classfile.AccAbstract, m.name, m.desc, nil); err != nil {
				return err
			}
		}
		if err := v.create(classfile.BinaryName(hook), hw); err != nil {
			return fmt.Errorf("creating %s: %w", classfile.BinaryName(hook), err)
		}
	}
	return nil
}

// Validate fails with a *ValidationError when a patch point was missed.
func (v *Visitor) Validate() error {
	return v.points.Validate(v.class)
}

func (v *Visitor) addHookMethod(hook, name, desc string) {
	if _, ok := v.hooks[hook]; !ok {
		v.hookOrder = append(v.hookOrder, hook)
	}
	for _, m := range v.hooks[hook] {
		if m.name == name && m.desc == desc {
			return
		}
	}
	v.hooks[hook] = append(v.hooks[hook], hookMethod{name: name, desc: desc})
}
