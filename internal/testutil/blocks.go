package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// DoubleScript reads an integer from <input>/value and writes twice its
// value to <output>/value.
const DoubleScript = `set -e
n=$(cat "$1/value")
echo $((n * 2)) > "$2/value"
`

// FailScript writes to stderr and exits nonzero.
const FailScript = `echo "boom: bad input" >&2
exit 3
`

// SleepScript outlives any short timeout.
const SleepScript = `sleep 30
echo late > "$2/value"
`

// SilentScript exits successfully without writing any output.
const SilentScript = `exit 0
`

// WriteFunction creates a function block directory dir/name whose executable
// run file is a POSIX shell script with the given body.
func WriteFunction(t testing.TB, dir, name, body string) string {
	t.Helper()
	root := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(root, 0o755))
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(filepath.Join(root, "run"), []byte(script), 0o755))
	return root
}

// WriteData creates a data block directory dir/name holding files, keyed by
// slash-separated relative path.
func WriteData(t testing.TB, dir, name string, files map[string]string) string {
	t.Helper()
	root := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(root, 0o755))
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

// WriteValue creates a data block dir/name holding a single value file.
func WriteValue(t testing.TB, dir, name, value string) string {
	t.Helper()
	return WriteData(t, dir, name, map[string]string{"value": value + "\n"})
}
