package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fgdb/internal/ir"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("UNKNOWN_BLOCK", "no registered block matches reference", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "UNKNOWN_BLOCK", resp.Error.Code)
	assert.Equal(t, "no registered block matches reference", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"ref": "seed", "line": "42"}
	err := formatter.Error("MALFORMED_EXPRESSION", "expected '='", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("All scenarios passed")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "All scenarios passed")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("UNKNOWN_BLOCK", "no registered block matches reference", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [UNKNOWN_BLOCK]")
	assert.Contains(t, buf.String(), "no registered block matches reference")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"ref": "seed"}
	err := formatter.Error("UNKNOWN_BLOCK", "no registered block matches reference", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [UNKNOWN_BLOCK]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name     string
		verbose  bool
		wantLog  bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Processing %s", "seed")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Processing seed")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"count": 42},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "E_TEST_FAILED",
		Message: "1 scenario(s) failed",
		Details: []string{"double-seed"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "E_TEST_FAILED", decoded.Code)
	assert.Equal(t, "1 scenario(s) failed", decoded.Message)
}

func TestOutputFormatter_FailJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := ir.NewAmbiguousNameError("seed", []string{"aaa", "bbb"})
	err := formatter.FailWith("failed to resolve block", fmt.Errorf("line 3: %w", cause), map[string]any{"committed": 2})
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "AMBIGUOUS_NAME", resp.Error.Code)
	details := resp.Error.Details.(map[string]any)
	assert.Equal(t, "seed", details["ref"])
	assert.Equal(t, []any{"aaa", "bbb"}, details["candidates"])
	assert.Equal(t, float64(2), details["committed"])
}

func TestOutputFormatter_FailText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail("failed to open store", errors.New("permission denied"))
	assert.Empty(t, buf.String(), "text errors are printed once by main")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.EqualError(t, err, "failed to open store: permission denied")
}

func TestOutputFormatter_FailWithoutDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	_ = formatter.Fail("failed to open store", errors.New("boom"))
	assert.NotContains(t, buf.String(), "details")
	assert.Contains(t, buf.String(), `"code": "E_COMMAND"`)
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		code ir.ErrorCode
		want int
	}{
		{ir.ErrCodeStoreNotInitialized, ExitCommandError},
		{ir.ErrCodeStoreLocked, ExitCommandError},
		{ir.ErrCodeIncompatibleSnapshotVersion, ExitCommandError},
		{ir.ErrCodeExecutionFailed, ExitFailure},
		{ir.ErrCodeUnknownBlock, ExitFailure},
		{ir.ErrCodeMalformedExpression, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.code))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad"))))
}
