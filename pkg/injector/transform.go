package injector

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/daimatz/classpatch/pkg/classfile"
	"github.com/daimatz/classpatch/pkg/classwriter"
)

type auxClass struct {
	name string
	w    *classwriter.Writer
}

// transformClass patches one target. Auxiliary classes created by the
// visitor are injected right before the target, and only when the
// target itself made it to serialization.
func (c *Core) transformClass(platform Platform, boundary Boundary, t Target) (res Result) {
	res.Class = t.Class
	defer func() {
		if r := recover(); r != nil {
			res.Err = errors.WithStack(&PanicError{Class: t.Class, Value: r})
		}
	}()

	platform.Log("Modify class " + t.Class)

	data, err := boundary.ReadClass(t.Class)
	if err != nil {
		res.Err = errors.WithStack(&ReadError{Class: t.Class, Err: err})
		return res
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		res.Err = errors.WithStack(&ReadError{Class: t.Class, Err: err})
		return res
	}
	var opts []classwriter.Option
	if c.hierarchy != nil {
		opts = append(opts, classwriter.WithHierarchy(c.hierarchy))
	}
	w, err := classwriter.New(cf, opts...)
	if err != nil {
		res.Err = errors.WithStack(&ReadError{Class: t.Class, Err: err})
		return res
	}

	var aux []auxClass
	create := func(name string, aw *classwriter.Writer) error {
		aux = append(aux, auxClass{name: name, w: aw})
		return nil
	}
	v := t.New(w, create)
	if err := w.Accept(v); err != nil {
		res.Err = errors.WithStack(&TransformError{Class: t.Class, Err: err})
		return res
	}
	if err := v.Validate(); err != nil {
		res.Err = errors.WithStack(err)
		return res
	}
	out, err := w.Bytes()
	if err != nil {
		res.Err = errors.WithStack(&TransformError{Class: t.Class, Err: err})
		return res
	}

	for _, a := range aux {
		b, err := a.w.Bytes()
		if err != nil {
			res.Err = errors.WithStack(&TransformError{Class: a.name, Err: err})
			return res
		}
		if err := c.inject(boundary, a.name, b); err != nil {
			res.Err = err
			return res
		}
		res.Created = append(res.Created, a.name)
	}
	if err := c.inject(boundary, t.Class, out); err != nil {
		res.Err = err
	}
	return res
}

func (c *Core) inject(boundary Boundary, name string, data []byte) error {
	c.dump(name, data)
	if err := boundary.InjectClass(name, data, 0, len(data)); err != nil {
		return errors.WithStack(&InjectError{Class: name, Err: err})
	}
	c.logger.Debugw("class injected", "class", name, "bytes", len(data))
	return nil
}

// dump writes a debug copy of the class. Failures are logged and
// otherwise ignored.
func (c *Core) dump(name string, data []byte) {
	if c.dumpDir == "" {
		return
	}
	path := filepath.Join(c.dumpDir, name+".class")
	if err := os.MkdirAll(c.dumpDir, 0o755); err != nil {
		c.logger.Warnw("failed to create dump directory", "path", c.dumpDir, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.logger.Warnw("failed to dump class", "class", name, "path", path, "error", err)
		return
	}
	c.logger.Debugw("class dumped", "class", name, "path", path)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

const banner = "****************************"

// logFailure writes the diagnostic block of a failed class.
func logFailure(platform Platform, res Result) {
	cause := errors.Cause(res.Err)
	platform.Log(banner)
	platform.Log("* CLASS INJECTION FAILED!! *")
	platform.Log(banner)
	platform.Log("* AsyncWorldEdit won't work properly.")
	platform.Log("* Class: " + res.Class)
	platform.Log(fmt.Sprintf("* Exception: %T", cause))
	platform.Log("* Error message: " + res.Err.Error())
	platform.Log("* Stack:")
	if st, ok := res.Err.(stackTracer); ok {
		for _, f := range st.StackTrace() {
			platform.Log(fmt.Sprintf("* %n(%s:%d)", f, f, f))
		}
	}
	platform.Log(banner)
}
