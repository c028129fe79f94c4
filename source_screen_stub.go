//go:build darwin && !cgo

package screenrec

import (
	"fmt"
	"image"
)

// DisplayInfo describes one active display.
type DisplayInfo struct {
	Index   int
	Bounds  image.Rectangle
	Primary bool
}

// ListDisplays requires cgo on darwin.
func ListDisplays() ([]DisplayInfo, error) {
	return nil, fmt.Errorf("%w: display capture on darwin requires cgo", ErrNotSupported)
}
