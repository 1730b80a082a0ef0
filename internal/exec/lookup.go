package exec

import (
	"os/exec"
	"path/filepath"
)

// Resolve resolves a program name through the executable search path and
// follows symlinks to the real binary. Relative results (possible when PATH
// contains relative entries) are made absolute before symlink resolution.
func Resolve(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
