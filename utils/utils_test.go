package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomId(t *testing.T) {
	a, b := RandomId(), RandomId()
	assert.Len(t, a, 10)
	assert.NotEqual(t, a, b)
}

func TestResolveTarget(t *testing.T) {
	dir := t.TempDir()

	program := filepath.Join(dir, "hello")
	require.NoError(t, os.WriteFile(program, []byte("#!/bin/sh\n"), 0o755))

	plain := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0o644))

	link := filepath.Join(dir, "hello-link")
	require.NoError(t, os.Symlink(program, link))

	resolvedDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	got, err := ResolveTarget(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolvedDir, "hello"), got)

	_, err = ResolveTarget(plain)
	assert.ErrorContains(t, err, "not executable")

	_, err = ResolveTarget(dir)
	assert.ErrorContains(t, err, "directory")

	_, err = ResolveTarget(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	_, err = ResolveTarget("")
	assert.Error(t, err)
}
