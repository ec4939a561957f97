package block

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fgdb/internal/ir"
	"github.com/roach88/fgdb/internal/testutil"
)

func TestDigest_Deterministic(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteData(t, dir, "a", map[string]string{"x": "1", "sub/y": "2"})
	b := testutil.WriteData(t, dir, "b", map[string]string{"sub/y": "2", "x": "1"})

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)

	assert.Equal(t, da, db, "digest ignores directory name and creation order")
	assert.True(t, ir.IsHashCode(da))
}

func TestDigest_SensitiveToContent(t *testing.T) {
	dir := t.TempDir()
	base, err := Digest(testutil.WriteData(t, dir, "a", map[string]string{"x": "1"}))
	require.NoError(t, err)

	tests := []struct {
		name  string
		files map[string]string
	}{
		{"content", map[string]string{"x": "2"}},
		{"path", map[string]string{"y": "1"}},
		{"extra file", map[string]string{"x": "1", "z": ""}},
		{"nesting", map[string]string{"d/x": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Digest(testutil.WriteData(t, t.TempDir(), "b", tt.files))
			require.NoError(t, err)
			assert.NotEqual(t, base, d)
		})
	}
}

func TestDigest_ExecBit(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteData(t, dir, "a", map[string]string{"x": "1"})
	before, err := Digest(a)
	require.NoError(t, err)

	require.NoError(t, os.Chmod(filepath.Join(a, "x"), 0o755))
	after, err := Digest(a)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestDigest_HashesPayloadNamedLikeMetadata(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteData(t, dir, "a", map[string]string{MetadataFile: `{"v":1}`, "x": "1"})
	b := testutil.WriteData(t, dir, "b", map[string]string{MetadataFile: `{"v":2}`, "x": "1"})

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)

	summary, err := Inspect(a)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Files)
}

func TestDigest_FileMatchesPayloadDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "seed.txt")
	require.NoError(t, os.WriteFile(file, []byte("15\n"), 0o644))
	payload := testutil.WriteData(t, dir, "payload", map[string]string{"seed.txt": "15\n"})

	df, err := Digest(file)
	require.NoError(t, err)
	dp, err := Digest(payload)
	require.NoError(t, err)
	assert.Equal(t, df, dp)
}

func TestDigest_RejectsSymlinks(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteData(t, dir, "a", map[string]string{"x": "1"})
	require.NoError(t, os.Symlink("x", filepath.Join(a, "link")))

	_, err := Digest(a)
	assert.ErrorContains(t, err, "unsupported file type")
}

func TestInspect(t *testing.T) {
	src := testutil.WriteData(t, t.TempDir(), "tree", map[string]string{"a": "12", "d/b": "345"})

	s, err := Inspect(src)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Files)
	assert.Equal(t, int64(5), s.Bytes)

	d, err := Digest(src)
	require.NoError(t, err)
	assert.Equal(t, d, s.Digest)
}
