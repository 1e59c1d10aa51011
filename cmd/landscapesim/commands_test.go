package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landscapesim/pkg/batch/initializer"
	"landscapesim/pkg/landscape/pipeline/pipelinetest"
	"landscapesim/pkg/landscape/runjob"
)

type cli struct {
	t       *testing.T
	f       *pipelinetest.Fixture
	cfgFile string
	runCfg  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	f := pipelinetest.New(t)
	cfgFile := filepath.Join(f.Dir, "application.yaml")
	yaml := fmt.Sprintf(`database:
  type: sqlite
  path: %s
engine:
  executable: SyncroSim.Console.exe
  platform: posix
libraries:
  - name: %s
    file: %s
    original_file: %s
publish:
  driver: memory
`, filepath.Join(f.Dir, "landscapesim.db"), pipelinetest.LibraryName, f.Lib.Path, f.Orig.Path)
	require.NoError(t, os.WriteFile(cfgFile, []byte(yaml), 0o644))

	runCfg := filepath.Join(f.Dir, "run.json")
	b, err := json.Marshal(pipelinetest.MinimalConfig())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(runCfg, b, 0o644))
	return &cli{t: t, f: f, cfgFile: cfgFile, runCfg: runCfg}
}

func (c *cli) exec(args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	opts := &rootOptions{init: func(bi *initializer.BatchInitializer) {
		bi.Runner = c.f.Fake
		bi.Cleaner = c.f.Cleaner
	}}
	full := append([]string{"--env", filepath.Join(c.f.Dir, "none.env"), "--config", c.cfgFile}, args...)
	code := executeWith(context.Background(), full, opts, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeView(t *testing.T, out string) runjob.View {
	t.Helper()
	var v runjob.View
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	return v
}

func TestSubmitRunStatusAcrossInvocations(t *testing.T) {
	c := newCLI(t)

	code, out, stderr := c.exec("register")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "registered castle")

	code, _, _ = c.exec("register", "castle")
	assert.Equal(t, exitUsage, code)

	code, out, stderr = c.exec("submit", "--library", "castle", "--pid", "1", "--sid", "10", "--config-file", c.runCfg)
	require.Equal(t, exitOK, code, stderr)
	submitted := decodeView(t, out)
	assert.Equal(t, "waiting", submitted.ModelStatus)

	code, out, _ = c.exec("jobs", "--library", "castle")
	require.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(out, submitted.UUID+"\twaiting"))

	code, out, stderr = c.exec("run", submitted.UUID)
	require.Equal(t, exitOK, code, stderr)
	ran := decodeView(t, out)
	assert.Equal(t, "complete", ran.ModelStatus)
	require.NotNil(t, ran.ResultScenario)
	assert.Equal(t, 11, ran.ResultScenario.SID)

	code, out, _ = c.exec("status", submitted.UUID)
	require.Equal(t, exitOK, code)
	assert.Equal(t, ran.ResultScenario, decodeView(t, out).ResultScenario)

	code, _, _ = c.exec("run", submitted.UUID)
	assert.Equal(t, exitUsage, code)

	code, out, _ = c.exec("poll")
	require.Equal(t, exitOK, code)
	assert.Empty(t, out)
}

func TestSubmitAndRunInOneInvocation(t *testing.T) {
	c := newCLI(t)
	code, out, stderr := c.exec("submit", "--library", "castle", "--pid", "1", "--sid", "10", "--config-file", c.runCfg, "--run")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "complete", decodeView(t, out).ModelStatus)
}

func TestExitCodes(t *testing.T) {
	c := newCLI(t)

	code, _, _ := c.exec("submit", "--library", "castle", "--pid", "2", "--sid", "10", "--config-file", c.runCfg)
	assert.Equal(t, exitUsage, code)

	code, _, _ = c.exec("submit", "--library", "castle", "--pid", "1", "--sid", "10", "--config-file", filepath.Join(c.f.Dir, "missing.json"))
	assert.Equal(t, exitUsage, code)

	code, _, _ = c.exec("status", "no-such-job")
	assert.Equal(t, exitFailure, code)

	c.cfgFile = filepath.Join(c.f.Dir, "missing.yaml")
	code, _, stderr := c.exec("jobs", "--library", "castle")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "missing.yaml")
}
