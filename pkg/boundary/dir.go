package boundary

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir reads classes from a class directory and writes injected classes to
// Out, or back into Root when Out is empty. Classes in Out shadow Root.
type Dir struct {
	Root string
	Out  string
}

func (d *Dir) out() string {
	if d.Out == "" {
		return d.Root
	}
	return d.Out
}

func (d *Dir) ReadClass(name string) ([]byte, error) {
	rel := filepath.FromSlash(entryName(name))
	for _, root := range []string{d.out(), d.Root} {
		data, err := os.ReadFile(filepath.Join(root, rel))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
	}
	return nil, notFound(name)
}

func (d *Dir) InjectClass(name string, data []byte, offset, length int) error {
	b, err := slice(data, offset, length)
	if err != nil {
		return err
	}
	path := filepath.Join(d.out(), filepath.FromSlash(entryName(name)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
