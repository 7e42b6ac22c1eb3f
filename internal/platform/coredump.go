//go:build linux || darwin

// Package platform holds OS-level hardening used by binaries embedding the
// SDK.
package platform

import "golang.org/x/sys/unix"

// DisableCoreDumps zeroes the core rlimit so decrypted key material never
// lands in a dump file.
func DisableCoreDumps() error {
	var rlim unix.Rlimit
	return unix.Setrlimit(unix.RLIMIT_CORE, &rlim)
}
