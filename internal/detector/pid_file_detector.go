package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// pidAlive returns true if a process with given pid exists (or EPERM).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// PIDFileDetector detects a process via a PID side file.
type PIDFileDetector struct {
	PIDFile string
}

type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// FormatPIDFile renders the side-file content for pid: the PID on the first
// line and, when the start time is known, a JSON meta line used to reject
// reused PIDs.
func FormatPIDFile(pid int) []byte {
	var b strings.Builder
	b.WriteString(strconv.Itoa(pid))
	b.WriteByte('\n')
	if start := getProcStartUnix(pid); start > 0 {
		mb, _ := json.Marshal(pidMeta{StartUnix: start})
		b.Write(mb)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func (d PIDFileDetector) Alive() (bool, error) {
	data, err := os.ReadFile(d.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return false, fmt.Errorf("invalid pid in %s: %w", d.PIDFile, err)
	}

	if len(lines) >= 2 {
		var m pidMeta
		if err := json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m); err == nil && m.StartUnix > 0 {
			cur := getProcStartUnix(pid)
			if cur > 0 && cur != m.StartUnix {
				return false, nil // PID reused; not our process
			}
		}
	}

	return pidAlive(pid), nil
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }
