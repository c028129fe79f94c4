//go:build novpx || (!darwin && !linux)

package screenrec

// IsVP8Available reports false: the libvpx binding is not built.
func IsVP8Available() bool { return false }

// IsVP9Available reports false: the libvpx binding is not built.
func IsVP9Available() bool { return false }
