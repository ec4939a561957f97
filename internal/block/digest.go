package block

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/roach88/fgdb/internal/ir"
)

// MetadataFile is the name of the metadata record stored beside a payload.
const MetadataFile = "system.json"

// entry is one record of a tree manifest.
type entry struct {
	path string // slash-separated, relative to the tree root
	dir  bool
	exec bool
	size int64
	hash string // hex sha256 of file contents; empty for directories
}

func (e entry) canonical() map[string]any {
	m := map[string]any{
		"path": e.path,
		"type": "file",
	}
	if e.dir {
		m["type"] = "dir"
		return m
	}
	m["exec"] = e.exec
	m["size"] = e.size
	m["sha256"] = e.hash
	return m
}

// Digest computes the tree digest of a file or directory.
//
// The tree is walked in lexical order and every directory and regular file is
// recorded as {path, type, exec, size, sha256}. The records are serialized as
// canonical JSON and hashed under the fgdb/tree/v1 domain. A single file
// digests as a tree holding only that file under its base name, so a file
// and the payload directory it is stored in share a digest.
//
// Symlinks and special files are rejected.
func Digest(src string) (string, error) {
	entries, err := walkTree(src)
	if err != nil {
		return "", err
	}
	return digestEntries(entries)
}

func digestEntries(entries []entry) (string, error) {
	records := make([]any, len(entries))
	for i, e := range entries {
		records[i] = e.canonical()
	}
	canonical, err := ir.MarshalCanonical(records)
	if err != nil {
		return "", fmt.Errorf("marshal tree manifest: %w", err)
	}
	return ir.HashWithDomain(ir.DomainTree, canonical), nil
}

func walkTree(src string) ([]entry, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return nil, err
	}
	if info.Mode().IsRegular() {
		e, err := fileEntry(src, filepath.Base(src), info)
		if err != nil {
			return nil, err
		}
		return []entry{e}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: unsupported file type %s", src, info.Mode().Type())
	}

	var entries []entry
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == src {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			entries = append(entries, entry{path: rel, dir: true})
		case info.Mode().IsRegular():
			e, err := fileEntry(p, rel, info)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		default:
			return fmt.Errorf("%s: unsupported file type %s", path.Join(filepath.ToSlash(src), rel), info.Mode().Type())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func fileEntry(p, rel string, info fs.FileInfo) (entry, error) {
	f, err := os.Open(p)
	if err != nil {
		return entry{}, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return entry{}, fmt.Errorf("hash %s: %w", p, err)
	}
	return entry{
		path: rel,
		exec: info.Mode().Perm()&0o111 != 0,
		size: n,
		hash: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Summary describes a payload tree.
type Summary struct {
	Digest string
	Files  int
	Bytes  int64
}

// Inspect digests src and counts its regular files and their total size.
func Inspect(src string) (Summary, error) {
	entries, err := walkTree(src)
	if err != nil {
		return Summary{}, err
	}
	digest, err := digestEntries(entries)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Digest: digest}
	for _, e := range entries {
		if !e.dir {
			s.Files++
			s.Bytes += e.size
		}
	}
	return s, nil
}

// hasFiles reports whether a tree holds at least one regular file.
func hasFiles(entries []entry) bool {
	for _, e := range entries {
		if !e.dir {
			return true
		}
	}
	return false
}
