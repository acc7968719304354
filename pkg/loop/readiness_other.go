//go:build !unix

package loop

import (
	"errors"
	"os"
)

func checkWritable(_ string, info os.FileInfo) error {
	if info.Mode().Perm()&0200 == 0 {
		return errors.New("permission denied")
	}
	return nil
}
