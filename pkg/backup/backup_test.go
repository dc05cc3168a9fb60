package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusProvider_MissingLogs(t *testing.T) {
	dir := t.TempDir()
	p := NewStatusProvider(dir)

	code, data := p.Summary()
	assert.Equal(t, "missing", code.Status)
	assert.Equal(t, "missing", data.Status)
	assert.Nil(t, code.LastLine)
}

func TestStatusProvider_OkAndErrorLines(t *testing.T) {
	dir := t.TempDir()
	logsDir := filepath.Join(dir, "logs")
	require.NoError(t, os.MkdirAll(logsDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(logsDir, "backup_code.log"), []byte("2026-07-01 sync ok\n2026-07-02 sync ok\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(logsDir, "backup_data.log"), []byte("2026-07-01 upload ok\nERROR: disk full\n"), 0o644))

	p := NewStatusProvider(dir)
	code, data := p.Summary()

	assert.Equal(t, "ok", code.Status)
	require.NotNil(t, code.LastLine)
	assert.Contains(t, *code.LastLine, "sync ok")

	assert.Equal(t, "error", data.Status)
	require.NotNil(t, data.LastLine)
	assert.Contains(t, *data.LastLine, "disk full")
}
