package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blockrt/internal/apps"
	"github.com/roach88/blockrt/internal/engine"
)

const counterIncrement = "Counter#0.vstack#0.hstack#0.button#0/action:onPress"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func decodeRenderResponse(t *testing.T, out string) (CLIResponse, RenderResult) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result RenderResult
	require.NoError(t, json.Unmarshal(raw, &result))
	return resp, result
}

func TestRender_InitialJSON(t *testing.T) {
	out, err := execute(t, "render", "--app", "counter", "--props", `{"step":5}`, "--format", "json")
	require.NoError(t, err)

	resp, result := decodeRenderResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "default", result.Session)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, int64(1), result.Steps[0].Seq)
	assert.Equal(t, []string{"Count: 0", "+5", "Reset"}, result.Texts)
}

func TestRender_SessionInDatabase(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "blockrt.db")
	req := writeFile(t, dir, "press.json",
		`{"events":[{"hook":"`+counterIncrement+`","userAction":{"actionId":"press"}}]}`)

	_, err := execute(t, "render", "--app", "counter", "--db", db, "--session", "s1")
	require.NoError(t, err)
	_, err = execute(t, "render", "--app", "counter", "--db", db, "--session", "s1", "--request", req)
	require.NoError(t, err)
	out, err := execute(t, "render", "--app", "counter", "--db", db, "--session", "s1", "--request", req)
	require.NoError(t, err)
	assert.Contains(t, out, "step 3:")
	assert.Contains(t, out, "texts: Count: 2 | +1 | Reset")

	out, err = execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "s1 (counter): 3 entries")
	assert.Contains(t, out, "All sessions are deterministic")
}

func TestRender_RequestFromStdin(t *testing.T) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewBufferString(`{"events":[{"scope":"ALL"}]}`))
	cmd.SetArgs([]string{"render", "--app", "counter", "--request", "-"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "texts: Count: 0")
}

func TestRender_Pump(t *testing.T) {
	out, err := execute(t, "render", "--app", "loader", "--pump")
	require.NoError(t, err)
	assert.Contains(t, out, "step 3:")
	assert.Contains(t, out, `texts: error: no greeting for "world" | Select`)
}

func TestRender_InvalidRequest(t *testing.T) {
	req := writeFile(t, t.TempDir(), "bad.json", `{"events":3}`)
	_, err := execute(t, "render", "--app", "counter", "--request", req)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRender_UnknownApp(t *testing.T) {
	_, err := execute(t, "render", "--app", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown app")
}

func TestRender_MissingApp(t *testing.T) {
	_, err := execute(t, "render")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestRender_ValidationFailure(t *testing.T) {
	broken := apps.NewRegistry(apps.App{
		Name: "broken",
		Root: engine.Define("Broken", func(c *engine.Ctx, props engine.Props) engine.Element {
			return nil
		}),
	})
	cmd := NewRenderCommand(&RootOptions{Format: "json", Apps: broken})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--app", "broken"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorCode(engine.ErrCodeRootCount), resp.Error.Code)
}
