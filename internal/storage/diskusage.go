package storage

import (
	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

// statfs reports free/total bytes for root using gopsutil/v3, a
// portable alternative to raw syscall.Statfs that also resolves on
// non-Linux build targets. Backs the selector's periodic path probes.
func statfs(root string) (free, total int64, err error) {
	usage, err := disk.Usage(root)
	if err != nil {
		return 0, 0, err
	}
	return int64(usage.Free), int64(usage.Total), nil
}

// quickFreeSpace reports free bytes for root via a direct unix.Statfs
// syscall, bypassing gopsutil's per-call process listing work. Used on
// the mount-discovery hot path (OnDiskAdded) where a newly seen mount
// must be accepted or rejected quickly.
func quickFreeSpace(root string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
