package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mautops/results-gin/cmd"
	"github.com/mautops/results-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCommandsRegistered(t *testing.T) {
	rootCmd := cmd.GetRootCmd()
	assert.Equal(t, "results-gin", rootCmd.Use)

	for _, name := range []string{"server", "migrate", "export", "fga"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("env-file"))

	serverCmd, _, _ := rootCmd.Find([]string{"server"})
	assert.NotNil(t, serverCmd.Flags().Lookup("port"))
	migrateCmd, _, _ := rootCmd.Find([]string{"migrate"})
	assert.NotNil(t, migrateCmd.Flags().Lookup("down"))

	for _, name := range []string{"model", "sync-roster", "revoke"} {
		c, _, err := rootCmd.Find([]string{"fga", name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

// sqliteEnv 使用 SQLite 内存数据库和临时名册（不需要外部服务）
func sqliteEnv(t *testing.T) {
	t.Helper()
	data, err := yaml.Marshal(testutil.Roster())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	t.Setenv("APP_DATABASE_DRIVER", "sqlite")
	t.Setenv("APP_DATABASE_DBNAME", ":memory:")
	t.Setenv("APP_DIRECTORY_FILE_PATH", path)
	t.Setenv("APP_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := cmd.GetRootCmd()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestMigrateCommandWithSQLite(t *testing.T) {
	sqliteEnv(t)

	_, err := run(t, "migrate", "--down", "0")
	require.NoError(t, err)

	_, err = run(t, "migrate", "--down", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestExportCommand(t *testing.T) {
	sqliteEnv(t)

	out, err := run(t, "export", "--student", "s-001", "--format", "csv", "--all=false", "--output", "")
	require.NoError(t, err)
	header := strings.SplitN(out, "\n", 2)[0]
	assert.Equal(t, "Unit Code,Unit Name,Assessment Type,Marks,Max Marks,Percentage,Grade,Status,Semester,Year,Academic Year,Lecturer,Graded Date", header)

	xlsxPath := filepath.Join(t.TempDir(), "results.xlsx")
	_, err = run(t, "export", "--student", "s-001", "--format", "xlsx", "--output", xlsxPath)
	require.NoError(t, err)
	info, err := os.Stat(xlsxPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = run(t, "export", "--student", "s-001", "--format", "pdf", "--output", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")

	_, err = run(t, "export", "--student", "s-001", "--format", "xlsx", "--output", "")
	require.Error(t, err)
}

func TestFGACommands(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("APP_OPENFGA_STORE_ID", "")

	out, err := run(t, "fga", "model")
	require.NoError(t, err)
	assert.Contains(t, out, "type student")
	assert.Contains(t, out, "define lecturer")

	_, err = run(t, "fga", "sync-roster", "--dry-run=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store_id")

	out, err = run(t, "fga", "sync-roster", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "unit:CS101#lecturer@user:"+testutil.LecturerCS)
	assert.Contains(t, out, "department:MATH#approver@user:"+testutil.HODMath)
	assert.Contains(t, out, "student:s-002#self@user:s-002")

	_, err = run(t, "fga", "revoke", "--user", testutil.LecturerCS, "--relation", "lecturer", "--object", "CS101")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type:id")

	_, err = run(t, "fga", "revoke", "--user", testutil.LecturerCS, "--relation", "lecturer", "--object", "unit:CS101")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store_id")
}
