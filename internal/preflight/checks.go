package preflight

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"newsagent/internal/recipients"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDocument verifies that a persisted JSON document parses. A missing
// document passes; the next run starts from an empty one. An unparseable
// document is moved aside by the next save that replaces it.
func CheckDocument(name, path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (not created yet)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: read: %v)", path, err)}
	}
	if len(data) > 0 && !json.Valid(data) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: invalid JSON; the next save moves it aside)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d bytes ok)", path, len(data))}
}

func describeResolution(res recipients.Resolution) string {
	detail := fmt.Sprintf("%d recipients from %s", len(res.Recipients), res.Source)
	if n := len(res.Fallbacks); n > 0 {
		detail += fmt.Sprintf(" (%d malformed sources skipped)", n)
	}
	return detail
}
