package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// The PID file layout is three lines: the PID, the JSON encoded Spec, and a
// JSON meta object carrying the process start time. The start time lets a
// later invocation tell our process apart from an unrelated one that reused
// the PID.
type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// WritePIDFile records pid and spec at path.
func WritePIDFile(path string, pid int, spec Spec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(pidMeta{StartUnix: startTimeUnix(pid)})
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(pid))
	b.WriteByte('\n')
	b.Write(specJSON)
	b.WriteByte('\n')
	b.Write(metaJSON)
	b.WriteByte('\n')
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// ReadPIDFile reads a PID file written by WritePIDFile. Files holding only a
// PID are accepted; spec is then nil and startUnix is 0.
func ReadPIDFile(path string) (pid int, spec *Spec, startUnix int64, err error) {
	// #nosec G304 -- path comes from the unit configuration
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, 0, err
	}
	lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	pid, err = strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, nil, 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	if len(lines) > 1 {
		var s Spec
		if json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &s) == nil && s.Name != "" {
			spec = &s
		}
	}
	if len(lines) > 2 {
		var m pidMeta
		if json.Unmarshal([]byte(strings.TrimSpace(lines[2])), &m) == nil {
			startUnix = m.StartUnix
		}
	}
	return pid, spec, startUnix, nil
}

// PIDFileAlive reports whether the process recorded at path is still the
// one that wrote it. A missing file is (false, 0, nil).
func PIDFileAlive(path string) (bool, int, error) {
	pid, _, recorded, err := ReadPIDFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if recorded > 0 {
		if cur := startTimeUnix(pid); cur > 0 && cur != recorded {
			return false, pid, nil
		}
	}
	return pidAlive(pid), pid, nil
}
