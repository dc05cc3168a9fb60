// Package backup reports local backup-log status and, when configured,
// uploads the profile's SQLite file to S3 for cold storage.
package backup

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
)

// LogStatus is the last-line-derived state of one backup log file.
type LogStatus struct {
	LogPath  string  `json:"log_path"`
	Status   string  `json:"status"` // "ok", "error", or "missing"
	LastLine *string `json:"last_line,omitempty"`
}

// StatusProvider reads the code/data backup log files under a profile's
// logs directory.
type StatusProvider struct {
	logsDir string
}

// NewStatusProvider builds a provider rooted at profileDataDir/logs.
func NewStatusProvider(profileDataDir string) *StatusProvider {
	return &StatusProvider{logsDir: filepath.Join(profileDataDir, "logs")}
}

// Summary reports the code and data backup log status.
func (p *StatusProvider) Summary() (code, data LogStatus) {
	codePath := filepath.Join(p.logsDir, "backup_code.log")
	dataPath := filepath.Join(p.logsDir, "backup_data.log")
	return statusFor(codePath), statusFor(dataPath)
}

func statusFor(path string) LogStatus {
	line, ok := lastLine(path)
	status := LogStatus{LogPath: path}
	if !ok {
		status.Status = "missing"
		return status
	}
	status.LastLine = &line
	upper := strings.ToUpper(line)
	if strings.Contains(upper, "ERROR") || strings.Contains(upper, "FAILED") {
		status.Status = "error"
	} else {
		status.Status = "ok"
	}
	return status
}

func lastLine(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	var last string
	found := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		last = line
		found = true
	}
	return last, found
}

// RemoteOutcome is the result of the most recent S3 upload attempt.
type RemoteOutcome struct {
	Attempted bool   `json:"attempted"`
	OK        bool   `json:"ok"`
	Key       string `json:"key,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Uploader uploads a profile's SQLite file to S3 on demand. A nil Uploader
// is valid and means cold backup is not configured for this node.
type Uploader interface {
	Upload(ctx context.Context, dbPath string) (RemoteOutcome, error)
}
