//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// sysProcAttr places the child in its own process group so the whole tree can
// be signalled. Detached children get a new session instead and survive the
// exit of the launching CLI.
//
// When running as root and Owner names another user the child is started with
// that user's credentials.
func sysProcAttr(spec Spec) (*syscall.SysProcAttr, error) {
	attrs := &syscall.SysProcAttr{}
	if spec.Detached {
		attrs.Setsid = true
	} else {
		attrs.Setpgid = true
	}
	if spec.Owner == "" || os.Geteuid() != 0 {
		return attrs, nil
	}
	u, err := user.Lookup(spec.Owner)
	if err != nil {
		return nil, fmt.Errorf("lookup owner %q: %w", spec.Owner, err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("owner %q uid: %w", spec.Owner, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("owner %q gid: %w", spec.Owner, err)
	}
	if int(uid) != os.Geteuid() {
		attrs.Credential = &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}
	}
	return attrs, nil
}

// signalGroup signals the process group led by pid, falling back to the
// single process when pid does not lead a group.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
	}
	return signalError(pid, err)
}

// pidAlive returns true if a process with given pid exists (or EPERM).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return (err == nil || errors.Is(err, syscall.EPERM)) && !isZombie(pid)
}
