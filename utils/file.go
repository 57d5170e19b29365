package utils

import "os"

// Exists reports whether path exists, regardless of type. This is the only
// question the presence flag contract allows — flag content is informational
// and must never be parsed.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// DirExists reports whether path exists and is a directory. The hypervisor's
// lock resource is directory-shaped, so a plain file at the same path does
// not count as "VM running".
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
