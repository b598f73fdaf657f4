/* pkg/logger/paths.go */

package logger

import (
	"os"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
)

const logFileName = shared.AppID + ".log"

// PlatformLogPaths returns candidate log paths in order of priority.
func PlatformLogPaths() []string {
	paths := []string{filepath.Join("/var/log", shared.AppID, logFileName)}

	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		if home, err := os.UserHomeDir(); err == nil {
			state = filepath.Join(home, ".local", "state")
		}
	}
	if state != "" {
		paths = append(paths, filepath.Join(state, shared.AppID, logFileName))
	}

	return append(paths,
		logFileName,
		filepath.Join(os.TempDir(), shared.AppID, logFileName),
	)
}
