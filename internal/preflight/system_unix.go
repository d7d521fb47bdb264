//go:build linux || darwin || freebsd

package preflight

import (
	"fmt"
	"syscall"
)

// CheckDiskSpace checks that the file system holding path has need bytes free.
func (c *Checker) CheckDiskSpace(path string, need uint64) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("statfs %s: %v", path, err)
		return result
	}

	free := uint64(fs.Bavail) * uint64(fs.Bsize)
	result.Message = fmt.Sprintf("%s free next to the index, %s needed", formatBytes(free), formatBytes(need))
	if free < need {
		result.Status = StatusFail
		result.Details = "A rebuild stages a full copy of the index before swapping it in"
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckFileDescriptors warns when the open file limit is low. Embedding
// clients and the watcher both hold descriptors during a build.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors"}

	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("getrlimit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("soft limit %d", limit.Cur)
	if limit.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("Raise it to at least %d, for example with 'ulimit -n %d'", MinFileDescriptors, MinFileDescriptors)
		return result
	}
	result.Status = StatusPass
	return result
}
