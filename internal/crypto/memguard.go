//go:build linux || darwin

package crypto

import "golang.org/x/sys/unix"

// LockMemory pins long-lived key material (the application key) so it is
// never written to swap. Failure is non-fatal; callers ignore the error on
// platforms or containers that deny mlock.
func LockMemory(b []byte) error   { return unix.Mlock(b) }
func UnlockMemory(b []byte) error { return unix.Munlock(b) }
