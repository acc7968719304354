package loop

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/disk"
)

// checkDataDirectory verifies dir exists, is a writable directory and, when
// minFree is set, has at least minFree bytes available. It creates nothing.
func checkDataDirectory(dir string, minFree uint64) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("data directory %s unavailable: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", dir)
	}
	if err := checkWritable(dir, info); err != nil {
		return fmt.Errorf("data directory %s is not writable: %w", dir, err)
	}

	if minFree > 0 {
		usage, err := disk.Usage(dir)
		if err != nil {
			return fmt.Errorf("failed to read free space for %s: %w", dir, err)
		}
		if usage.Free < minFree {
			return fmt.Errorf("data directory %s has %d bytes free, need %d", dir, usage.Free, minFree)
		}
	}
	return nil
}
