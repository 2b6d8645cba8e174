package util

import (
	"os"
)

// CheckFileExists reports whether fpath exists and is stat-able.
func CheckFileExists(fpath string) bool {
	_, e := os.Stat(fpath)
	return e == nil
}

// CheckDirExists reports whether fpath exists and is a directory.
func CheckDirExists(fpath string) bool {
	fi, e := os.Stat(fpath)
	return e == nil && fi.IsDir()
}
