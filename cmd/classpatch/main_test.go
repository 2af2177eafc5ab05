package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gobwas/glob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/daimatz/classpatch/internal/worldedittest"
	"github.com/daimatz/classpatch/pkg/boundary"
	"github.com/daimatz/classpatch/pkg/classfile"
	"github.com/daimatz/classpatch/pkg/classwriter"
	"github.com/daimatz/classpatch/pkg/config"
	"github.com/daimatz/classpatch/pkg/injector"
)

func setup(t *testing.T) {
	t.Helper()
	cfg = config.DefaultConfig()
	cfg.DumpDir = ""
	log = zap.NewNop().Sugar()
}

func writeJar(t *testing.T, omit ...string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range worldedittest.Names() {
		if len(omit) > 0 && omit[0] == name {
			continue
		}
		w, err := zw.Create(classfile.InternalName(name) + ".class")
		require.NoError(t, err)
		_, err = w.Write(worldedittest.MustBuild(name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "worldedit.jar")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRunPatchJar(t *testing.T) {
	setup(t)
	out := filepath.Join(t.TempDir(), "out", "patched.jar")

	require.NoError(t, runPatch(writeJar(t), out))

	patched, err := boundary.OpenJar(out, cfg.MaxClassSize)
	require.NoError(t, err)
	classes := patched.Classes()
	assert.Len(t, classes, 11)
	assert.Contains(t, classes, "org.primesoft.asyncworldedit.injector.hooks.IOperationsHook")

	data, err := patched.ReadClass("com.sk89q.worldedit.function.operation.Operations")
	require.NoError(t, err)
	cf, err := classfile.ParseBytes(data)
	require.NoError(t, err)
	assert.NotNil(t, cf.FindField("awe$hook", "Lorg/primesoft/asyncworldedit/injector/hooks/IOperationsHook;"))
}

func TestRunPatchStrict(t *testing.T) {
	setup(t)
	jar := writeJar(t, "com.sk89q.worldedit.EditSession")
	out := filepath.Join(t.TempDir(), "patched.jar")

	require.NoError(t, runPatch(jar, out), "failures are reported, not fatal")

	cfg.Strict = true
	err := runPatch(jar, out)
	var readErr *injector.ReadError
	assert.ErrorAs(t, err, &readErr)
}

func TestRunPatchDir(t *testing.T) {
	setup(t)
	root := t.TempDir()
	for _, name := range worldedittest.Names() {
		path := filepath.Join(root, filepath.FromSlash(classfile.InternalName(name))+".class")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, worldedittest.MustBuild(name), 0o644))
	}
	out := t.TempDir()

	require.NoError(t, runPatch(root, out))
	_, err := os.Stat(filepath.Join(out, "com", "sk89q", "worldedit", "EditSession.class"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "org", "primesoft", "asyncworldedit", "injector", "hooks", "IEditSessionHook.class"))
	assert.NoError(t, err)
}

func TestFilterClasses(t *testing.T) {
	names := []string{"a.B", "a.b.C", "a.b.D", "x.Y"}
	for _, tc := range []struct {
		pattern string
		want    []string
	}{
		{"**", names},
		{"a.*", []string{"a.B"}},
		{"a.**", []string{"a.B", "a.b.C", "a.b.D"}},
		{"*.Y", []string{"x.Y"}},
		{"a.b.{C,D}", []string{"a.b.C", "a.b.D"}},
	} {
		t.Run(tc.pattern, func(t *testing.T) {
			g, err := glob.Compile(tc.pattern, '.')
			require.NoError(t, err)
			assert.Equal(t, tc.want, filterClasses(names, g))
		})
	}
}

func TestInspect(t *testing.T) {
	cf, err := classfile.ParseBytes(worldedittest.MustBuild("com.sk89q.worldedit.function.operation.Operations"))
	require.NoError(t, err)
	w, err := classwriter.New(cf)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, inspect(&out, w))
	text := out.String()
	assert.Contains(t, text, "class com.sk89q.worldedit.function.operation.Operations extends java.lang.Object")
	assert.Contains(t, text, "completeBlindly")
	assert.Contains(t, text, "insns=1 max_stack=0 max_locals=1")
	assert.Contains(t, text, "patch target")
}

func TestVerboseRaisesLevel(t *testing.T) {
	t.Cleanup(func() { cmd = Cmd{} })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--verbose", "version"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "classpatch version "+injector.Version+"\n", out.String())
	assert.Equal(t, zapcore.DebugLevel, level.Level())
}
