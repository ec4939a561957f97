package block

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/fgdb/internal/ir"
)

// PayloadDir is the directory holding a block's payload.
const PayloadDir = "payload"

// Metadata is the system.json record written beside every payload.
type Metadata struct {
	ID        string    `json:"id"`
	Kind      ir.Kind   `json:"kind"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Digest    string    `json:"digest"`
}

// Prepared is a validated registration source whose identity is known but
// which has not been stored yet.
type Prepared struct {
	Kind       ir.Kind
	Name       string
	SourcePath string // Absolute path of the source file or directory
	Digest     string
	ID         string
	Manifest   *Manifest // Entry point of a function block; nil for data
}

// Store manages block directories under a root.
type Store struct {
	root string
}

// NewStore returns a Store rooted at dir (usually <store>/blocks).
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the blocks directory.
func (s *Store) Root() string { return s.root }

// Path returns the directory of block id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.root, id)
}

// PayloadPath returns the payload directory of block id.
func (s *Store) PayloadPath(id string) string {
	return filepath.Join(s.root, id, PayloadDir)
}

// Has reports whether block id is stored.
func (s *Store) Has(id string) bool {
	info, err := os.Stat(s.PayloadPath(id))
	return err == nil && info.IsDir()
}

// Prepare validates a registration source and computes its identity.
//
// name defaults to the base name of src. Fails with BLOCK_SOURCE_MISSING when
// src does not exist and BLOCK_PAYLOAD_INVALID when the payload lacks what
// its kind requires: functions need a directory with an entry point, data
// needs at least one file.
func Prepare(kind ir.Kind, src, name string) (*Prepared, error) {
	if kind != ir.KindFunction && kind != ir.KindData {
		return nil, ir.NewError(ir.ErrCodeBlockPayloadInvalid, "cannot register block of kind %q", kind)
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", src, err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		e := ir.WrapError(ir.ErrCodeBlockSourceMissing, err, "block source does not exist")
		e.Ref = src
		return nil, e
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", src, err)
	}

	if name == "" {
		name = filepath.Base(abs)
	}
	name = norm.NFC.String(name)

	entries, err := walkTree(abs)
	if err != nil {
		return nil, ir.WrapError(ir.ErrCodeBlockPayloadInvalid, err, "read block payload")
	}

	p := &Prepared{Kind: kind, Name: name, SourcePath: abs}
	switch kind {
	case ir.KindFunction:
		if !info.IsDir() {
			return nil, ir.NewError(ir.ErrCodeBlockPayloadInvalid, "function block must be a directory")
		}
		p.Manifest, err = LoadManifest(abs)
		if err != nil {
			return nil, err
		}
	case ir.KindData:
		if !hasFiles(entries) {
			return nil, ir.NewError(ir.ErrCodeBlockPayloadInvalid, "data block has no files")
		}
	}

	p.Digest, err = digestEntries(entries)
	if err != nil {
		return nil, err
	}
	p.ID, err = ir.BlockID(kind, p.Digest)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Put stores the payload at src as block node.ID and writes its metadata.
//
// The payload is copied into a staging directory which is then renamed into
// place. A leftover directory for the same ID (from an interrupted commit)
// is replaced.
func (s *Store) Put(node ir.BlockNode, src string) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create blocks directory: %w", err)
	}
	staging, err := os.MkdirTemp(s.root, ".staging-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	payload := filepath.Join(staging, PayloadDir)
	if err := copyTree(payload, src); err != nil {
		return fmt.Errorf("copy payload of %s: %w", ir.Head(node.ID), err)
	}

	meta := Metadata{
		ID:        node.ID,
		Kind:      node.Kind,
		Name:      node.Name,
		CreatedAt: node.CreatedAt.UTC(),
		Digest:    node.Digest,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, MetadataFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	dst := s.Path(node.ID)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear %s: %w", dst, err)
	}
	if err := os.Rename(staging, dst); err != nil {
		return fmt.Errorf("move block into place: %w", err)
	}
	return nil
}

// Remove deletes block id. Removing an absent block is not an error.
func (s *Store) Remove(id string) error {
	if err := os.RemoveAll(s.Path(id)); err != nil {
		return fmt.Errorf("remove block %s: %w", ir.Head(id), err)
	}
	return nil
}

// ReadMetadata reads the system.json record of block id.
func (s *Store) ReadMetadata(id string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.Path(id), MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("read metadata of %s: %w", ir.Head(id), err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata of %s: %w", ir.Head(id), err)
	}
	return &meta, nil
}

// Manifest loads the entry point of stored function block id.
func (s *Store) Manifest(id string) (*Manifest, error) {
	return LoadManifest(s.PayloadPath(id))
}

// Materialize copies the payload of block id into dst, which must not exist
// or be empty.
func (s *Store) Materialize(id, dst string) error {
	if !s.Has(id) {
		return fmt.Errorf("block %s is not stored", ir.Head(id))
	}
	if err := copyTree(dst, s.PayloadPath(id)); err != nil {
		return fmt.Errorf("materialize %s: %w", ir.Head(id), err)
	}
	return nil
}

// Files lists the regular files of block id's payload, slash-separated and
// in lexical order.
func (s *Store) Files(id string) ([]string, error) {
	entries, err := walkTree(s.PayloadPath(id))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", ir.Head(id), err)
	}
	var files []string
	for _, e := range entries {
		if !e.dir {
			files = append(files, e.path)
		}
	}
	return files, nil
}

// copyTree copies a file or directory to dst. A file lands at
// dst/<basename>. Execute bits are preserved.
func copyTree(dst, src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.CopyFS(dst, os.DirFS(src))
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return copyFile(filepath.Join(dst, filepath.Base(src)), src, info.Mode().Perm())
}

func copyFile(dst, src string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666|(perm&0o111))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
