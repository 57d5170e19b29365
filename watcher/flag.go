package watcher

import (
	"os"
	"time"

	"github.com/projecteru2/vmsentinel/utils"
)

// WriteFlag creates the presence flag. The content is a timestamp for humans
// poking around the state dir; existence alone carries the state, so readers
// must never parse it.
func WriteFlag(path string) error {
	return utils.AtomicWriteFile(path, []byte(time.Now().Format(time.RFC3339)+"\n"), 0o644)
}

// RemoveFlag removes the presence flag. An already-absent flag is not an
// error — repeated "stopped" evaluations must stay idempotent.
func RemoveFlag(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
