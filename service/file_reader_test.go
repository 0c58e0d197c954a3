package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludo-technologies/pyjit/domain"
)

func createTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("pass\n"), 0o644))
	}
	return root
}

func relativeTo(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		rel, err := filepath.Rel(root, f)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func TestFileReader_CollectPythonFiles(t *testing.T) {
	root := createTree(t,
		"a.py",
		"notes.txt",
		"stub.pyi",
		"pkg/b.py",
		"pkg/deep/c.py",
		"pkg/__pycache__/cached.py",
		".hidden/d.py",
		"venv/lib/e.py",
		"tests/test_a.py",
	)
	reader := NewFileReader()

	t.Run("Recursive", func(t *testing.T) {
		files, err := reader.CollectPythonFiles([]string{root}, true, []string{"**/*.py"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.py", "pkg/b.py", "pkg/deep/c.py", "tests/test_a.py"}, relativeTo(t, root, files))
	})

	t.Run("NonRecursive", func(t *testing.T) {
		files, err := reader.CollectPythonFiles([]string{root}, false, []string{"**/*.py"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.py"}, relativeTo(t, root, files))
	})

	t.Run("ExcludeDirectoryGlob", func(t *testing.T) {
		files, err := reader.CollectPythonFiles([]string{root}, true, []string{"**/*.py"}, []string{"tests/**", "pkg/deep/**"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.py", "pkg/b.py"}, relativeTo(t, root, files))
	})

	t.Run("ExcludeBaseName", func(t *testing.T) {
		files, err := reader.CollectPythonFiles([]string{root}, true, nil, []string{"test_*.py"})
		require.NoError(t, err)
		assert.NotContains(t, relativeTo(t, root, files), "tests/test_a.py")
	})

	t.Run("IncludeSubtree", func(t *testing.T) {
		files, err := reader.CollectPythonFiles([]string{root}, true, []string{"pkg/**/*.py"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"pkg/b.py", "pkg/deep/c.py"}, relativeTo(t, root, files))
	})

	t.Run("ExplicitFileAndDeduplication", func(t *testing.T) {
		a := filepath.Join(root, "a.py")
		files, err := reader.CollectPythonFiles([]string{a, root, a}, false, []string{"**/*.py"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{a}, files)
	})

	t.Run("ExplicitNonPythonFile", func(t *testing.T) {
		files, err := reader.CollectPythonFiles([]string{filepath.Join(root, "notes.txt")}, true, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("MissingPath", func(t *testing.T) {
		_, err := reader.CollectPythonFiles([]string{filepath.Join(root, "missing")}, true, nil, nil)
		require.Error(t, err)
		assert.Equal(t, domain.ErrCodeFileNotFound, domain.ErrorCode(err))
	})
}

func TestFileReader_Helpers(t *testing.T) {
	root := createTree(t, "m.py")
	reader := NewFileReader()

	assert.True(t, reader.IsValidPythonFile("x.py"))
	assert.True(t, reader.IsValidPythonFile("X.PY"))
	assert.False(t, reader.IsValidPythonFile("x.pyi"))
	assert.False(t, reader.IsValidPythonFile("x.txt"))

	exists, err := reader.FileExists(filepath.Join(root, "m.py"))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = reader.FileExists(root)
	require.NoError(t, err)
	assert.False(t, exists, "directories are not files")

	exists, err = reader.FileExists(filepath.Join(root, "nope.py"))
	require.NoError(t, err)
	assert.False(t, exists)

	content, err := reader.ReadFile(filepath.Join(root, "m.py"))
	require.NoError(t, err)
	assert.Equal(t, "pass\n", string(content))

	_, err = reader.ReadFile(filepath.Join(root, "nope.py"))
	assert.Equal(t, domain.ErrCodeFileNotFound, domain.ErrorCode(err))

	assert.NoError(t, reader.ValidatePaths([]string{root}))
	assert.Error(t, reader.ValidatePaths([]string{filepath.Join(root, "nope")}))
}
