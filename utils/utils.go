package utils

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// RandomId returns a short random identifier.
func RandomId() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// ResolveTarget turns a program name into an absolute path to an executable file.
// Bare names are looked up in PATH.
func ResolveTarget(target string) (string, error) {
	if target == "" {
		return "", errors.New("no program given")
	}

	if !strings.ContainsRune(target, filepath.Separator) {
		if path, err := exec.LookPath(target); err == nil {
			target = path
		}
	}

	targetFilePath, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}

	targetFilePath, err = filepath.EvalSymlinks(targetFilePath)
	if err != nil {
		return "", err
	}

	file, err := os.Stat(targetFilePath)
	if err != nil {
		return "", err
	}
	if file.IsDir() {
		return "", fmt.Errorf("%v is a directory", targetFilePath)
	}
	if file.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%v is not executable", targetFilePath)
	}

	return targetFilePath, nil
}
