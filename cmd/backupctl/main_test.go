package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/filebackup/internal/backup"
)

func TestReadPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Records":[]}`), 0o600))

	got, err := readPayload(nil, path)
	require.NoError(t, err)
	assert.Equal(t, `{"Records":[]}`, string(got))

	got, err = readPayload(strings.NewReader("stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "stdin", string(got))

	_, err = readPayload(nil, filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	resp := backup.AggregateResponse{
		StatusCode: 500,
		Processed:  1,
		Failed:     1,
		Outcomes: []backup.Outcome{{
			Status:      backup.StatusFailed,
			Source:      backup.Location{Bucket: "inbox", Key: "a.txt"},
			Destination: backup.Location{Bucket: "backup", Key: "a.txt"},
			Reason:      backup.ReasonNotFound,
			Err:         errors.New("stat source: not found"),
		}},
	}
	require.NoError(t, printResult(&buf, resp))

	var out struct {
		Summary  backup.Summary `json:"summary"`
		Outcomes []outcomeLine  `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 1, out.Summary.Failed)
	require.Len(t, out.Outcomes, 1)
	assert.Equal(t, "s3://inbox/a.txt", out.Outcomes[0].Source)
	assert.Equal(t, backup.ReasonNotFound, out.Outcomes[0].Reason)
	assert.Equal(t, "stat source: not found", out.Outcomes[0].Error)
}

func TestCopyCommand_MemoryStore(t *testing.T) {
	t.Setenv("STORAGE_PROVIDER", "memory")
	t.Setenv("APP_LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"copy", "--bucket", "inbox", "--key", "a b.txt", "--destination", "backup"})

	// The memory store starts without the source object.
	err := root.Execute()
	assert.Error(t, err)
	assert.Contains(t, out.String(), `"reason": "not_found"`)
	assert.Contains(t, out.String(), "s3://inbox/a b.txt")
}
