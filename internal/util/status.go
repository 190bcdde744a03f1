package util

import (
	"os"
	"time"
)

// Permission states reported by Inspect.
const (
	PermissionOK      = "ok"
	PermissionWarning = "warning"
	PermissionError   = "error"
)

// StateBoxStatus describes the state directory and the files kept in it.
type StateBoxStatus struct {
	RootPath         string        `json:"root_path" yaml:"root_path"`
	ReadOnly         bool          `json:"read_only" yaml:"read_only"`
	Files            []*FileStatus `json:"files,omitempty" yaml:"files,omitempty"`
	PermissionStatus string        `json:"permission_status" yaml:"permission_status"`
	Warnings         []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Errors           []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// FileStatus is the on-disk state of one file.
type FileStatus struct {
	Path    string    `json:"path" yaml:"path"`
	Exists  bool      `json:"exists" yaml:"exists"`
	Size    int64     `json:"size" yaml:"size"`
	Mode    string    `json:"mode,omitempty" yaml:"mode,omitempty"`
	ModTime time.Time `json:"mod_time,omitempty" yaml:"mod_time,omitempty"`
}

func getFileStatus(path string) (*FileStatus, os.FileInfo) {
	status := &FileStatus{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return status, nil
	}
	status.Exists = true
	status.Size = info.Size()
	status.Mode = info.Mode().String()
	status.ModTime = info.ModTime()
	return status, info
}

// Inspect reports on the state directory and the given files, which are
// resolved against it. Files readable by group or others produce a warning
// since they may hold the session token.
func Inspect(sb *StateBox, files ...string) *StateBoxStatus {
	status := &StateBoxStatus{
		RootPath:         sb.RootPath(),
		ReadOnly:         sb.IsReadOnly(),
		PermissionStatus: PermissionOK,
	}
	warn := func(msg string) {
		status.Warnings = append(status.Warnings, msg)
		if status.PermissionStatus == PermissionOK {
			status.PermissionStatus = PermissionWarning
		}
	}

	if _, err := os.Stat(sb.RootPath()); err != nil {
		if os.IsNotExist(err) {
			warn("state directory does not exist")
		} else {
			status.Errors = append(status.Errors, "failed to access state directory: "+err.Error())
			status.PermissionStatus = PermissionError
		}
	}

	for _, f := range files {
		fs, info := getFileStatus(sb.ResolvePath(f))
		status.Files = append(status.Files, fs)
		if info != nil && info.Mode().Perm()&0o077 != 0 {
			warn(fs.Path + " has overly permissive permissions")
		}
	}
	return status
}
