//go:build unix

package trial

import "syscall"

// Own process group: the program is its own group leader
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}
