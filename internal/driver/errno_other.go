//go:build !unix

package driver

// classifyErrno has no errno table off unix; Classify falls back to io/fs sentinels.
func classifyErrno(error) (IOKind, bool) { return IOUnknown, false }
