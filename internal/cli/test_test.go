package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := run(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := run(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := run(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := run(t, "--format", "json", "test", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := run(t, "test", harnessScenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ three_way_cycle")
	assert.Contains(t, out, "✓ execution_rollback")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
}

func TestTestCommandFilterJSON(t *testing.T) {
	out, err := run(t, "--format", "json", "test", harnessScenarios, "--filter", "expiry_*")
	require.NoError(t, err, out)

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, 1, response.Data.Total)
	require.Len(t, response.Data.Scenarios, 1)
	assert.Equal(t, "expiry_sweep", response.Data.Scenarios[0].Name)
	assert.True(t, response.Data.Scenarios[0].Pass)
}

// copyScenario copies one harness scenario into a fresh scenarios dir.
func copyScenario(t *testing.T, name string) (scenariosDir, goldenDir string) {
	t.Helper()
	root := t.TempDir()
	scenariosDir = filepath.Join(root, "scenarios")
	goldenDir = filepath.Join(root, "golden")
	require.NoError(t, os.MkdirAll(scenariosDir, 0755))

	data, err := os.ReadFile(filepath.Join(harnessScenarios, name+".yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(scenariosDir, name+".yaml"), data, 0644))
	return scenariosDir, goldenDir
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	scenariosDir, goldenDir := copyScenario(t, "reject_releases")

	out, err := run(t, "test", scenariosDir, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ reject_releases (golden updated)")

	written, err := os.ReadFile(filepath.Join(goldenDir, "reject_releases.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("../harness/testdata/golden/reject_releases.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	out, err = run(t, "test", scenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 passed, 0 failed")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	scenariosDir, goldenDir := copyScenario(t, "expiry_sweep")
	require.NoError(t, os.MkdirAll(goldenDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "expiry_sweep.golden"), []byte(`{"trace":[]}`), 0644))

	out, err := run(t, "test", scenariosDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Contains(t, out, "✗ expiry_sweep")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandFailingScenario(t *testing.T) {
	scenariosDir, _ := copyScenario(t, "three_way_cycle")
	path := filepath.Join(scenariosDir, "three_way_cycle.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	broken := strings.Replace(string(data), `amount: "1050"`, `amount: "7"`, 1)
	require.NotEqual(t, string(data), broken)
	require.NoError(t, os.WriteFile(path, []byte(broken), 0644))

	out, err := run(t, "--format", "json", "test", scenariosDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, "E_TEST_FAILED", response.Error.Code)
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: bad\n"), 0644))

	out, err := run(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ bad.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestHelpText(t *testing.T) {
	out, err := run(t, "test", "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "conformance")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
	assert.Contains(t, out, "scenarios-dir")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "cycle-three.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "cycle-four.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "linear-cap.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "cycle-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	for _, f := range files {
		assert.True(t, strings.HasPrefix(filepath.Base(f), "cycle-"), f)
	}

	_, err = findScenarioFiles(tmpDir, "[")
	assert.Error(t, err)
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
