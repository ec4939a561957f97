package block

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fgdb/internal/ir"
	"github.com/roach88/fgdb/internal/schema"
)

// ManifestFile is the optional manifest at the root of a function block.
const ManifestFile = "block.yaml"

// RunFile is the conventional entry point of a function block without a
// manifest. It must be executable.
const RunFile = "run"

//go:embed manifest.cue
var manifestSchemaSource string

var manifestSchema = schema.MustCompile("manifest.cue", manifestSchemaSource)

// Manifest describes how to invoke a function block.
type Manifest struct {
	Entrypoint  []string          `json:"entrypoint"`
	Timeout     string            `json:"timeout,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Description string            `json:"description,omitempty"`
}

// TimeoutDuration returns the manifest timeout, or 0 when unset.
func (m *Manifest) TimeoutDuration() time.Duration {
	if m.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(m.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Command returns the argv for invoking the function whose payload lives at
// root. A relative program path containing a separator is resolved against
// root; bare program names are left for PATH lookup.
func (m *Manifest) Command(root string) []string {
	argv := append([]string(nil), m.Entrypoint...)
	if prog := argv[0]; !filepath.IsAbs(prog) && strings.ContainsRune(prog, '/') {
		argv[0] = filepath.Join(root, filepath.FromSlash(prog))
	}
	return argv
}

// ParseManifest decodes and validates a block.yaml document.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s is empty", ManifestFile)
	}
	var m Manifest
	if err := manifestSchema.Check("#Manifest", raw, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", ManifestFile, err)
	}
	if _, err := time.ParseDuration(m.Timeout); m.Timeout != "" && err != nil {
		return nil, fmt.Errorf("%s: timeout: %w", ManifestFile, err)
	}
	return &m, nil
}

// LoadManifest finds the entry point of the function payload at root.
//
// A block.yaml manifest wins; otherwise an executable run file is used.
// Anything else fails with BLOCK_PAYLOAD_INVALID.
func LoadManifest(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestFile))
	switch {
	case err == nil:
		m, err := ParseManifest(data)
		if err != nil {
			return nil, ir.WrapError(ir.ErrCodeBlockPayloadInvalid, err, "invalid function manifest")
		}
		if err := checkProgram(root, m.Entrypoint[0]); err != nil {
			return nil, err
		}
		return m, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, ir.WrapError(ir.ErrCodeBlockPayloadInvalid, err, "read function manifest")
	}

	info, err := os.Stat(filepath.Join(root, RunFile))
	if err != nil || !info.Mode().IsRegular() {
		return nil, ir.NewError(ir.ErrCodeBlockPayloadInvalid,
			"function block needs %s or an executable %s file", ManifestFile, RunFile)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return nil, ir.NewError(ir.ErrCodeBlockPayloadInvalid, "%s is not executable", RunFile)
	}
	return &Manifest{Entrypoint: []string{"./" + RunFile}}, nil
}

// checkProgram verifies that an entry point inside the payload exists.
func checkProgram(root, prog string) error {
	if filepath.IsAbs(prog) || !strings.ContainsRune(prog, '/') {
		return nil
	}
	p := filepath.Join(root, filepath.FromSlash(prog))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ir.NewError(ir.ErrCodeBlockPayloadInvalid, "entrypoint %q escapes the block", prog)
	}
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return ir.NewError(ir.ErrCodeBlockPayloadInvalid, "entrypoint %q not found in block", prog)
	}
	return nil
}
