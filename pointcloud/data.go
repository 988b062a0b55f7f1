package pointcloud

import "image/color"

// Data describes the non-positional channels of a single point.
type Data interface {
	// HasColor returns whether or not this point is colored.
	HasColor() bool

	// RGB255 returns, if colored, the RGB components of the color.
	RGB255() (uint8, uint8, uint8)

	// Color returns the native color of the point.
	Color() color.Color

	// HasValue returns whether this point carries a scalar value
	// (typically lidar intensity).
	HasValue() bool

	// Value returns the scalar value, if it exists.
	Value() int
}

type basicData struct {
	hasColor bool
	c        color.NRGBA

	hasValue bool
	value    int
}

// NewBasicData returns point data that is solely positional.
func NewBasicData() Data {
	return &basicData{}
}

// NewColoredData returns point data carrying a color.
func NewColoredData(c color.NRGBA) Data {
	return &basicData{c: c, hasColor: true}
}

// NewValueData returns point data carrying a scalar value.
func NewValueData(v int) Data {
	return &basicData{value: v, hasValue: true}
}

func (bp *basicData) HasColor() bool { return bp.hasColor }

func (bp *basicData) RGB255() (uint8, uint8, uint8) { return bp.c.R, bp.c.G, bp.c.B }

func (bp *basicData) Color() color.Color { return &bp.c }

func (bp *basicData) HasValue() bool { return bp.hasValue }

func (bp *basicData) Value() int { return bp.value }
