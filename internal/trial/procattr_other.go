//go:build !unix

package trial

import "syscall"

func detachedProcAttr() *syscall.SysProcAttr {
	return nil
}
