package boundary

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/c2h5oh/datasize"

	"github.com/daimatz/classpatch/pkg/classfile"
)

var jmodMagic = []byte("JM\x01\x00")

// Jar serves classes from a jar or jmod archive held in memory. Injected
// classes are kept aside and merged into the archive by WriteJar.
type Jar struct {
	Path string

	// prefix is "classes/" for jmod files.
	prefix   string
	header   []byte
	maxEntry datasize.ByteSize
	zr       *zip.Reader
	entries  map[string]*zip.File

	mu       sync.Mutex
	injected map[string][]byte
	order    []string
}

// OpenJar loads the archive at path. Entries larger than maxEntry are
// refused when read.
func OpenJar(path string, maxEntry datasize.ByteSize) (*Jar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jar: reading %s: %w", path, err)
	}
	j, err := NewJar(data, maxEntry)
	if err != nil {
		return nil, fmt.Errorf("jar: %s: %w", path, err)
	}
	j.Path = path
	return j, nil
}

// NewJar wraps archive bytes. A jmod header is recognized and skipped.
func NewJar(data []byte, maxEntry datasize.ByteSize) (*Jar, error) {
	j := &Jar{
		maxEntry: maxEntry,
		entries:  make(map[string]*zip.File),
		injected: make(map[string][]byte),
	}
	if bytes.HasPrefix(data, jmodMagic) {
		j.header = jmodMagic
		j.prefix = "classes/"
		data = data[len(jmodMagic):]
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	j.zr = zr
	for _, f := range zr.File {
		j.entries[f.Name] = f
	}
	return j, nil
}

// IsJmod reports whether the archive carries a jmod header.
func (j *Jar) IsJmod() bool {
	return j.header != nil
}

// Classes returns the binary names of all classes in the archive, sorted.
func (j *Jar) Classes() []string {
	var names []string
	for name := range j.entries {
		rel, ok := strings.CutPrefix(name, j.prefix)
		if !ok || !strings.HasSuffix(rel, ".class") {
			continue
		}
		names = append(names, classfile.BinaryName(strings.TrimSuffix(rel, ".class")))
	}
	sort.Strings(names)
	return names
}

func (j *Jar) ReadClass(name string) ([]byte, error) {
	j.mu.Lock()
	data, ok := j.injected[name]
	j.mu.Unlock()
	if ok {
		return data, nil
	}

	f, ok := j.entries[j.prefix+entryName(name)]
	if !ok {
		return nil, notFound(name)
	}
	if j.maxEntry > 0 && f.UncompressedSize64 > uint64(j.maxEntry) {
		return nil, fmt.Errorf("jar: %s is %s, larger than the %s limit",
			name, datasize.ByteSize(f.UncompressedSize64).HR(), j.maxEntry.HR())
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("jar: opening %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err = io.ReadAll(io.LimitReader(rc, int64(f.UncompressedSize64)))
	if err != nil {
		return nil, fmt.Errorf("jar: reading %s: %w", f.Name, err)
	}
	return data, nil
}

func (j *Jar) InjectClass(name string, data []byte, offset, length int) error {
	b, err := slice(data, offset, length)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.injected[name]; !ok {
		j.order = append(j.order, name)
	}
	j.injected[name] = b
	return nil
}

// Injected returns the binary names of injected classes in injection order.
func (j *Jar) Injected() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.order...)
}

// WriteJar writes the archive with injected classes replacing their
// originals. New classes are appended after the existing entries.
func (j *Jar) WriteJar(w io.Writer) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := w.Write(j.header); err != nil {
		return err
	}
	zw := zip.NewWriter(w)
	replaced := make(map[string]bool, len(j.injected))
	for _, f := range j.zr.File {
		rel := strings.TrimPrefix(f.Name, j.prefix)
		name := classfile.BinaryName(strings.TrimSuffix(rel, ".class"))
		data, ok := j.injected[name]
		if !ok || !strings.HasSuffix(rel, ".class") || !strings.HasPrefix(f.Name, j.prefix) {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("jar: copying %s: %w", f.Name, err)
			}
			continue
		}
		header := f.FileHeader
		if err := writeEntry(zw, &header, data); err != nil {
			return err
		}
		replaced[name] = true
	}
	for _, name := range j.order {
		if replaced[name] {
			continue
		}
		header := &zip.FileHeader{Name: j.prefix + entryName(name), Method: zip.Deflate}
		if err := writeEntry(zw, header, j.injected[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, header *zip.FileHeader, data []byte) error {
	// sizes and checksum are recomputed by the writer
	header.CRC32 = 0
	header.CompressedSize64 = 0
	header.UncompressedSize64 = 0
	ew, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("jar: writing %s: %w", header.Name, err)
	}
	_, err = ew.Write(data)
	return err
}
