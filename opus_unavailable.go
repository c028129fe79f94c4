//go:build noopus || (!cgo && !darwin && !linux)

package screenrec

// IsOpusAvailable reports false: no Opus binding is built.
func IsOpusAvailable() bool { return false }
