package domain

// Dimensions is the width and height of a raster in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageBuffer is a decoded 8-bit RGB raster. Pix holds Width*Height*3 bytes, row-major.
type ImageBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewImageBuffer allocates a zeroed buffer.
func NewImageBuffer(width, height int) *ImageBuffer {
	return &ImageBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

func (b *ImageBuffer) Dimensions() Dimensions {
	return Dimensions{Width: b.Width, Height: b.Height}
}

// Offset returns the index of the red byte of pixel (x, y).
func (b *ImageBuffer) Offset(x, y int) int {
	return (y*b.Width + x) * 3
}
