package block

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fgdb/internal/ir"
	"github.com/roach88/fgdb/internal/testutil"
)

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func nodeFor(p *Prepared, seq int64) ir.BlockNode {
	return ir.BlockNode{
		ID:         p.ID,
		Kind:       p.Kind,
		Name:       p.Name,
		CreatedAt:  created,
		SourcePath: p.SourcePath,
		Digest:     p.Digest,
		Seq:        seq,
	}
}

func TestPrepare_Data(t *testing.T) {
	src := testutil.WriteValue(t, t.TempDir(), "seed", "15")

	p, err := Prepare(ir.KindData, src, "")
	require.NoError(t, err)
	assert.Equal(t, "seed", p.Name, "name defaults to the folder name")
	assert.Equal(t, ir.MustBlockID(ir.KindData, p.Digest), p.ID)
	assert.Nil(t, p.Manifest)
}

func TestPrepare_SameBytesDifferentKinds(t *testing.T) {
	src := testutil.WriteFunction(t, t.TempDir(), "double", testutil.DoubleScript)

	fn, err := Prepare(ir.KindFunction, src, "")
	require.NoError(t, err)
	data, err := Prepare(ir.KindData, src, "")
	require.NoError(t, err)

	assert.Equal(t, fn.Digest, data.Digest)
	assert.NotEqual(t, fn.ID, data.ID)
}

func TestPrepare_NameIsNormalized(t *testing.T) {
	src := testutil.WriteValue(t, t.TempDir(), "seed", "15")

	p, err := Prepare(ir.KindData, src, "cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", p.Name)
}

func TestPrepare_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(filepath.Join(empty, "sub"), 0o755))
	file := filepath.Join(dir, "fn.sh")
	require.NoError(t, os.WriteFile(file, []byte("#!/bin/sh\n"), 0o755))

	tests := []struct {
		name string
		kind ir.Kind
		src  string
		code ir.ErrorCode
	}{
		{"missing source", ir.KindData, filepath.Join(dir, "nope"), ir.ErrCodeBlockSourceMissing},
		{"empty data", ir.KindData, empty, ir.ErrCodeBlockPayloadInvalid},
		{"function without entry point", ir.KindFunction, empty, ir.ErrCodeBlockPayloadInvalid},
		{"function from file", ir.KindFunction, file, ir.ErrCodeBlockPayloadInvalid},
		{"root kind", ir.KindRoot, empty, ir.ErrCodeBlockPayloadInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Prepare(tt.kind, tt.src, "")
			assert.True(t, ir.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestStore_PutAndRead(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "blocks"))
	src := testutil.WriteValue(t, t.TempDir(), "seed", "15")
	p, err := Prepare(ir.KindData, src, "")
	require.NoError(t, err)

	require.NoError(t, s.Put(nodeFor(p, 1), src))
	assert.True(t, s.Has(p.ID))

	meta, err := s.ReadMetadata(p.ID)
	require.NoError(t, err)
	assert.Equal(t, &Metadata{ID: p.ID, Kind: ir.KindData, Name: "seed", CreatedAt: created, Digest: p.Digest}, meta)

	stored, err := Digest(s.PayloadPath(p.ID))
	require.NoError(t, err)
	assert.Equal(t, p.Digest, stored, "stored payload digests like its source")

	files, err := s.Files(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"value"}, files)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no staging directories left behind")
}

func TestStore_PutSingleFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "blocks"))
	src := filepath.Join(t.TempDir(), "seed.txt")
	require.NoError(t, os.WriteFile(src, []byte("15\n"), 0o644))
	p, err := Prepare(ir.KindData, src, "")
	require.NoError(t, err)
	assert.Equal(t, "seed.txt", p.Name)

	require.NoError(t, s.Put(nodeFor(p, 1), src))
	data, err := os.ReadFile(filepath.Join(s.PayloadPath(p.ID), "seed.txt"))
	require.NoError(t, err)
	assert.Equal(t, "15\n", string(data))
}

func TestStore_PayloadNamedLikeMetadata(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "blocks"))
	src := filepath.Join(t.TempDir(), MetadataFile)
	require.NoError(t, os.WriteFile(src, []byte(`{"v":1}`), 0o644))
	p, err := Prepare(ir.KindData, src, "")
	require.NoError(t, err)

	require.NoError(t, s.Put(nodeFor(p, 1), src))
	files, err := s.Files(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{MetadataFile}, files)

	meta, err := s.ReadMetadata(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, meta.ID, "the record beside the payload is untouched")
}

func TestStore_FunctionKeepsExecBit(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "blocks"))
	src := testutil.WriteFunction(t, t.TempDir(), "double", testutil.DoubleScript)
	p, err := Prepare(ir.KindFunction, src, "")
	require.NoError(t, err)
	require.NoError(t, s.Put(nodeFor(p, 1), src))

	m, err := s.Manifest(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"./run"}, m.Entrypoint)
}

func TestStore_MaterializeAndRemove(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "blocks"))
	src := testutil.WriteData(t, t.TempDir(), "tree", map[string]string{"a": "1", "d/b": "2"})
	p, err := Prepare(ir.KindData, src, "")
	require.NoError(t, err)
	require.NoError(t, s.Put(nodeFor(p, 1), src))

	dst := filepath.Join(t.TempDir(), "input")
	require.NoError(t, s.Materialize(p.ID, dst))
	got, err := Digest(dst)
	require.NoError(t, err)
	assert.Equal(t, p.Digest, got)

	require.NoError(t, s.Remove(p.ID))
	assert.False(t, s.Has(p.ID))
	require.NoError(t, s.Remove(p.ID), "removing twice is fine")

	assert.Error(t, s.Materialize(p.ID, filepath.Join(t.TempDir(), "again")))
}

func TestStore_PutReplacesLeftover(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "blocks"))
	src := testutil.WriteValue(t, t.TempDir(), "seed", "15")
	p, err := Prepare(ir.KindData, src, "")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(s.Path(p.ID), "junk"), 0o755))
	require.NoError(t, s.Put(nodeFor(p, 1), src))

	_, err = os.Stat(filepath.Join(s.Path(p.ID), "junk"))
	assert.True(t, os.IsNotExist(err))
}
