package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidRequest(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ok.json",
		`{"events":[{"scope":"ALL"},{"hook":"h","async":true,"asyncRequest":{"requestId":"r"}}]}`)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+path)
}

func TestValidate_InvalidRequests(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "ok.json", `{"events":[]}`)
	wrongType := writeFile(t, dir, "type.json", `{"events":3}`)
	notJSON := writeFile(t, dir, "garbage.json", `{events`)

	out, err := execute(t, "validate", good, wrongType, notJSON)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 request(s) invalid")
	assert.Contains(t, out, "✓ "+good)
	assert.Contains(t, out, "✗ "+wrongType)
	assert.Contains(t, out, "✗ "+notJSON)
	assert.Contains(t, out, "body is not valid JSON")
}

func TestValidate_JSONOutput(t *testing.T) {
	path := writeFile(t, t.TempDir(), "type.json", `{"events":3}`)

	out, err := execute(t, "validate", path, "--format", "json")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", "/nonexistent/request.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
