package boundary

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, header []byte, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(header)
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestMemory(t *testing.T) {
	m := NewMemory(map[string][]byte{"a.B": {1, 2, 3}})

	data, err := m.ReadClass("a.B")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, err = m.ReadClass("a.C")
	assert.ErrorIs(t, err, ErrClassNotFound)
	assert.Contains(t, err.Error(), "a.C")

	require.NoError(t, m.InjectClass("a.C", []byte{9, 8, 7, 6}, 1, 2))
	data, err = m.ReadClass("a.C")
	require.NoError(t, err)
	assert.Equal(t, []byte{8, 7}, data)
	assert.Equal(t, []Injection{{Name: "a.C", Data: []byte{8, 7}}}, m.Injections())

	assert.Error(t, m.InjectClass("a.D", []byte{1}, 0, 2))
	assert.Error(t, m.InjectClass("a.D", []byte{1}, -1, 1))
	assert.Len(t, m.Injections(), 1)
}

func TestDir(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "C.class"), []byte{1}, 0o644))

	d := &Dir{Root: root, Out: out}
	data, err := d.ReadClass("a.b.C")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, data)

	require.NoError(t, d.InjectClass("a.b.C", []byte{2, 3}, 0, 2))
	data, err = d.ReadClass("a.b.C")
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3}, data, "output shadows the root")

	original, err := os.ReadFile(filepath.Join(root, "a", "b", "C.class"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, original)

	_, err = d.ReadClass("a.b.Missing")
	assert.ErrorIs(t, err, ErrClassNotFound)

	t.Run("in place", func(t *testing.T) {
		d := &Dir{Root: root}
		require.NoError(t, d.InjectClass("x.Y", []byte{5}, 0, 1))
		data, err := os.ReadFile(filepath.Join(root, "x", "Y.class"))
		require.NoError(t, err)
		assert.Equal(t, []byte{5}, data)
	})
}

func TestJar(t *testing.T) {
	archive := buildZip(t, nil, map[string][]byte{
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n"),
		"a/b/C.class":          {0xCA, 0xFE},
		"a/b/D.class":          {0xBA, 0xBE},
	})
	j, err := NewJar(archive, datasize.MB)
	require.NoError(t, err)
	assert.False(t, j.IsJmod())
	assert.Equal(t, []string{"a.b.C", "a.b.D"}, j.Classes())

	data, err := j.ReadClass("a.b.C")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0xFE}, data)

	_, err = j.ReadClass("a.b.E")
	assert.ErrorIs(t, err, ErrClassNotFound)

	require.NoError(t, j.InjectClass("a.b.C", []byte{1, 2}, 0, 2))
	require.NoError(t, j.InjectClass("a.b.IHook", []byte{3}, 0, 1))
	assert.Equal(t, []string{"a.b.C", "a.b.IHook"}, j.Injected())

	data, err = j.ReadClass("a.b.C")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)

	var out bytes.Buffer
	require.NoError(t, j.WriteJar(&out))

	patched, err := NewJar(out.Bytes(), datasize.MB)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b.C", "a.b.D", "a.b.IHook"}, patched.Classes())
	for name, want := range map[string][]byte{
		"a.b.C":     {1, 2},
		"a.b.D":     {0xBA, 0xBE},
		"a.b.IHook": {3},
	} {
		got, err := patched.ReadClass(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	assert.Contains(t, patched.entries, "META-INF/MANIFEST.MF")
}

func TestJmod(t *testing.T) {
	archive := buildZip(t, jmodMagic, map[string][]byte{
		"classes/module-info.class": {0},
		"classes/a/B.class":         {7},
		"lib/libfoo.so":             {0},
	})
	j, err := NewJar(archive, datasize.MB)
	require.NoError(t, err)
	assert.True(t, j.IsJmod())
	assert.Equal(t, []string{"a.B", "module-info"}, j.Classes())

	data, err := j.ReadClass("a.B")
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, data)

	require.NoError(t, j.InjectClass("a.B", []byte{8}, 0, 1))
	var out bytes.Buffer
	require.NoError(t, j.WriteJar(&out))
	assert.True(t, bytes.HasPrefix(out.Bytes(), jmodMagic))

	patched, err := NewJar(out.Bytes(), datasize.MB)
	require.NoError(t, err)
	data, err = patched.ReadClass("a.B")
	require.NoError(t, err)
	assert.Equal(t, []byte{8}, data)
}

func TestJarEntryLimit(t *testing.T) {
	archive := buildZip(t, nil, map[string][]byte{"a/Big.class": make([]byte, 2048)})
	j, err := NewJar(archive, datasize.KB)
	require.NoError(t, err)

	_, err = j.ReadClass("a.Big")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestOpenJar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugin.jar")
	require.NoError(t, os.WriteFile(path, buildZip(t, nil, map[string][]byte{"A.class": {1}}), 0o644))

	j, err := OpenJar(path, datasize.MB)
	require.NoError(t, err)
	assert.Equal(t, path, j.Path)
	assert.Equal(t, []string{"A"}, j.Classes())

	_, err = OpenJar(filepath.Join(t.TempDir(), "missing.jar"), datasize.MB)
	assert.Error(t, err)
}
