// Package version reports build metadata of the cmdkit binary.
//
// Version, commit and build time are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/cmdkit/version.Version=1.0.0"
//
// Unset values fall back to the VCS information stamped by the Go toolchain.
package version
