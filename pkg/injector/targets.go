package injector

import (
	"github.com/daimatz/classpatch/pkg/classwriter"
	"github.com/daimatz/classpatch/pkg/visitors"
)

// ClassVisitor rewrites one class and reports afterwards whether every
// expected patch point was found.
type ClassVisitor interface {
	classwriter.Visitor
	Validate() error
}

// VisitorFactory builds the visitor for a class. create receives any
// auxiliary classes the visitor synthesizes.
type VisitorFactory func(w *classwriter.Writer, create classwriter.ClassCreator) ClassVisitor

// Target pairs a class with the visitor that patches it.
type Target struct {
	Class string
	New   VisitorFactory
}

func adapt(f func(*classwriter.Writer, classwriter.ClassCreator) *visitors.Visitor) VisitorFactory {
	return func(w *classwriter.Writer, create classwriter.ClassCreator) ClassVisitor {
		return f(w, create)
	}
}

// DefaultTargets returns the WorldEdit classes in the order they are
// patched.
func DefaultTargets() []Target {
	return []Target{
		{Class: visitors.EditSessionClass, New: adapt(visitors.NewEditSession)},
		{Class: visitors.OperationsClass, New: adapt(visitors.NewOperations)},
		{Class: visitors.ForwardExtentCopyClass, New: adapt(visitors.NewForwardExtentCopy)},
		{Class: visitors.BlockArrayClipboardClass, New: adapt(visitors.NewBlockArrayClipboard)},
		{Class: visitors.FlattenedClipboardTransformClass, New: adapt(visitors.NewFlattenedClipboardTransform)},
		{Class: visitors.SnapshotUtilCommandsClass, New: adapt(visitors.NewSnapshotUtilCommands)},
	}
}

// IsTarget reports whether class is one of the default targets.
func IsTarget(class string) bool {
	for _, t := range DefaultTargets() {
		if t.Class == class {
			return true
		}
	}
	return false
}
