package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html><html><body><div class="tiny-sandbox"></div></body></html>`

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "index.html", page)
	writeFile(t, root, "lessons/dom.html", page)
	writeFile(t, root, "lessons/deep/events.html", page)
	writeFile(t, root, "notes.txt", "not a page")
	writeFile(t, root, "fake.html", "just some words")

	lib, err := NewLibrary(root, "", nil)
	require.NoError(t, err)
	return lib
}

func TestLibraryList(t *testing.T) {
	lib := newTestLibrary(t)

	entries, err := lib.List(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"fake.html", "index.html", "lessons/deep/events.html", "lessons/dom.html"}, names)
	assert.Equal(t, int64(len(page)), entries[1].Size)
}

func TestLibraryListPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.html", page)
	writeFile(t, root, "lessons/b.html", page)

	lib, err := NewLibrary(root, "lessons/*.html", nil)
	require.NoError(t, err)

	entries, err := lib.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lessons/b.html", entries[0].Name)
}

func TestLibraryRead(t *testing.T) {
	lib := newTestLibrary(t)

	data, err := lib.Read("lessons/dom.html")
	require.NoError(t, err)
	assert.Equal(t, page, string(data))

	data, err = lib.Read("lessons/../index.html")
	require.NoError(t, err)
	assert.Equal(t, page, string(data))
}

func TestLibraryReadErrors(t *testing.T) {
	lib := newTestLibrary(t)

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "missing", path: "nope.html", want: ErrNotFound},
		{name: "pattern mismatch", path: "notes.txt", want: ErrNotFound},
		{name: "directory", path: "lessons", want: ErrNotFound},
		{name: "not html content", path: "fake.html", want: ErrNotHTML},
		{name: "parent escape", path: "../secret.html", want: ErrOutsideRoot},
		{name: "nested escape", path: "lessons/../../secret.html", want: ErrOutsideRoot},
		{name: "absolute", path: "/etc/passwd", want: ErrOutsideRoot},
		{name: "empty", path: "", want: ErrOutsideRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lib.Read(tt.path)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLibraryDisabled(t *testing.T) {
	lib, err := NewLibrary("", "", nil)
	require.NoError(t, err)

	assert.False(t, lib.Enabled())
	_, err = lib.List(context.Background())
	assert.ErrorIs(t, err, ErrNoLibrary)
	_, err = lib.Read("index.html")
	assert.ErrorIs(t, err, ErrNoLibrary)
}

func TestNewLibraryRejects(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file.html", page)

	_, err := NewLibrary(filepath.Join(root, "missing"), "", nil)
	assert.Error(t, err)

	_, err = NewLibrary(filepath.Join(root, "file.html"), "", nil)
	assert.Error(t, err)

	_, err = NewLibrary(root, "[", nil)
	assert.Error(t, err)
}

func TestLibraryListCancelled(t *testing.T) {
	lib := newTestLibrary(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lib.List(ctx)
	assert.Error(t, err)
}
