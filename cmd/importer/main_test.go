package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/medimport/internal/core"
)

const participantsCSV = "Liste des participants\n" +
	"Nom,Prénom,Sexe,Téléphone,Adresse,Statut\n" +
	"Alami,Fatima,F,0612345678,Rue X,répondu\n" +
	"Alami,Fatima,F,0612345678,Rue X,répondu\n" +
	"Bennani,Karim,M,12,Rue Y,absent\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_OfflineDryRun(t *testing.T) {
	path := writeFile(t, "participants.csv", participantsCSV)

	out, err := execute(t, "run", "--offline", "--kind", "participant", "--campaign", "42", path)
	require.NoError(t, err)

	var sum core.ImportSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum), out)
	assert.True(t, sum.DryRun)
	assert.Equal(t, "participants.csv", sum.FileName)
	assert.Equal(t, 3, sum.TotalRows)
	assert.Equal(t, 1, sum.ImportedCount)
	assert.Equal(t, 1, sum.SkippedCount, "second line repeats the first")
	assert.Equal(t, 1, sum.ErrorCount)
	require.Len(t, sum.Errors, 1)
	assert.Equal(t, 5, sum.Errors[0].Row)
}

func TestRun_StrictFailsOnRejectedRows(t *testing.T) {
	path := writeFile(t, "participants.csv", participantsCSV)

	_, err := execute(t, "run", "--offline", "--strict", "--kind", "participant", "--campaign", "42", path)
	require.Error(t, err)
	assert.Equal(t, exitRejected, exitCode(err))
}

func TestRun_UsageErrors(t *testing.T) {
	path := writeFile(t, "participants.csv", participantsCSV)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown kind", []string{"run", "--offline", "--kind", "donor", "--campaign", "42", path}},
		{"bad campaign", []string{"run", "--offline", "--kind", "participant", "--campaign", "-1", path}},
		{"bad policy", []string{"run", "--offline", "--kind", "participant", "--campaign", "42", "--policy", "merge", path}},
		{"apply offline", []string{"run", "--offline", "--apply", "--kind", "participant", "--campaign", "42", path}},
		{"missing file", []string{"run", "--offline", "--kind", "participant", "--campaign", "42", filepath.Join(t.TempDir(), "nope.csv")}},
		{"legacy xls", []string{"run", "--offline", "--kind", "participant", "--campaign", "42", writeFile(t, "old.xls", "x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, exitUsage, exitCode(err))
		})
	}
}

func TestRun_FileTooLarge(t *testing.T) {
	t.Setenv("IMPORT_MAX_FILE_SIZE", "10B")
	path := writeFile(t, "participants.csv", participantsCSV)

	_, err := execute(t, "run", "--offline", "--kind", "participant", "--campaign", "42", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
}

func TestKinds(t *testing.T) {
	out, err := execute(t, "kinds")
	require.NoError(t, err)
	assert.Contains(t, out, "beneficiary")
	assert.Contains(t, out, "participant")
	assert.Contains(t, out, "telephone")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, exitUsage, exitCode(withCode(exitUsage, errors.New("bad flag"))))
	assert.Nil(t, withCode(exitUsage, nil))
}
