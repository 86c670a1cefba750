package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/reviewdash/internal/conf"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := RootCommand(&conf.Settings{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"sync", "ingest", "feedback", "dimensions", "serve"})
}

func TestRootCommand_InitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	root := RootCommand(&conf.Settings{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--init-config", path})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "database")
}

// writeConfig writes a default config and keeps log output off disk.
func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("REVIEWDASH_LOGGING_FILE_OUTPUT_ENABLED", "false")
	t.Setenv("REVIEWDASH_LOGGING_PIPELINE_ENABLED", "false")
	config := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, conf.WriteDefaultConfig(config))
	return config
}

func TestFeedbackCommand_DryRun(t *testing.T) {
	config := writeConfig(t)
	input := filepath.Join(t.TempDir(), "feedback.csv")
	require.NoError(t, os.WriteFile(input, []byte("Work Item Id,Verdict\nwi-1,Approved\nwi-2,Rejected\n"), 0o600))

	root := RootCommand(&conf.Settings{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"feedback", "--config", config, "--dry-run", input})
	require.NoError(t, root.Execute())

	assert.JSONEq(t, `{"rows": 2}`, out.String())
}

func TestFeedbackCommand_RejectsLegacySpreadsheet(t *testing.T) {
	config := writeConfig(t)
	input := filepath.Join(t.TempDir(), "feedback.xls")
	require.NoError(t, os.WriteFile(input, []byte("legacy"), 0o600))

	root := RootCommand(&conf.Settings{})
	root.SetArgs([]string{"feedback", "--config", config, input})
	require.Error(t, root.Execute())
}
