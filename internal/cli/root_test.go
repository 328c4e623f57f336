package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// execute runs the root command against the database at db and returns
// stdout, stderr and the command error.
func execute(t *testing.T, db string, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{Logger: zap.NewNop()})
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--db", db}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "hr_data.db")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "renshi", cmd.Use)
	assert.Contains(t, cmd.Long, "personnel roster")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"init"}, {"import"}, {"export"}, {"export-pool"},
		{"add"}, {"edit"}, {"enroll"}, {"unenroll"}, {"delete"},
		{"show"}, {"list"}, {"pool"}, {"divisions"}, {"log"}, {"backup"},
		{"password", "set"}, {"password", "disable"}, {"password", "verify"}, {"password", "status"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"db", "config", "metrics"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestExportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	exportCmd, _, err := cmd.Find([]string{"export"})
	require.NoError(t, err)

	outFlag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, outFlag)
	assert.Equal(t, "o", outFlag.Shorthand)
	assert.NotNil(t, exportCmd.Flags().Lookup("province"))
	assert.NotNil(t, exportCmd.Flags().Lookup("city"))
}

func TestLogCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	logCmd, _, err := cmd.Find([]string{"log"})
	require.NoError(t, err)

	limitFlag := logCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, tempDB(t), "--format", "yaml", "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInit(t *testing.T) {
	db := tempDB(t)
	stdout, _, err := execute(t, db, "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, db)
	assert.Contains(t, stdout, "schema v2")

	// second run only checks
	_, _, err = execute(t, db, "init")
	require.NoError(t, err)
}

func TestInit_BadConfig(t *testing.T) {
	_, _, err := execute(t, tempDB(t), "--config", filepath.Join(t.TempDir(), "missing.yaml"), "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMetricsFlag(t *testing.T) {
	db := tempDB(t)
	_, stderr, err := execute(t, db, "--metrics", "add", "--set", "真实姓名=张三", "--set", "手机号=138")
	require.NoError(t, err)
	assert.Contains(t, stderr, `renshi_operations_total{op="person.create",outcome="ok"} 1`)
}
