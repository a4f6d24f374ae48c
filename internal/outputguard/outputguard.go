// Package outputguard implements the Output Size Guard: a byte-size
// comparison against stdout/stderr files written by a running job.
package outputguard

import "os"

// SizeOK reports whether the file at path is at or below max bytes. A
// path that does not exist yet is not a violation — the job may simply
// not have written anything.
func SizeOK(path string, max int64) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return info.Size() <= max, nil
}
