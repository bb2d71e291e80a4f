package ppg

import (
	"image"
	"image/color"
	"time"
)

// Face ROI geometry: a fixed box centered horizontally over the forehead.
const (
	FaceBoxWidth  = 80
	FaceBoxHeight = 100
	FaceBoxTop    = 0.15
)

// Fingertip geometry: the frame is viewed as a coarse grid and only the
// central window is averaged, away from light leaking around the finger.
const (
	FingertipGrid        = 50
	FingertipWindowStart = 10
	FingertipWindowEnd   = 40
)

// FaceRegion returns the forehead box for a frame with the given bounds,
// clipped to the frame.
func FaceRegion(bounds image.Rectangle) image.Rectangle {
	x0 := bounds.Min.X + (bounds.Dx()-FaceBoxWidth)/2
	y0 := bounds.Min.Y + int(float64(bounds.Dy())*FaceBoxTop)
	r := image.Rect(x0, y0, x0+FaceBoxWidth, y0+FaceBoxHeight)
	return r.Intersect(bounds)
}

type rgbReader func(x, y int) (r, g, b uint32)

// readerFor picks a per-pixel accessor once per frame so the inner loops do
// not type-switch or allocate.
func readerFor(img image.Image) rgbReader {
	switch m := img.(type) {
	case *image.RGBA:
		return func(x, y int) (uint32, uint32, uint32) {
			i := m.PixOffset(x, y)
			return uint32(m.Pix[i]), uint32(m.Pix[i+1]), uint32(m.Pix[i+2])
		}
	case *image.NRGBA:
		return func(x, y int) (uint32, uint32, uint32) {
			i := m.PixOffset(x, y)
			return uint32(m.Pix[i]), uint32(m.Pix[i+1]), uint32(m.Pix[i+2])
		}
	case *image.YCbCr:
		return func(x, y int) (uint32, uint32, uint32) {
			c := m.YCbCrAt(x, y)
			r, g, b := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
			return uint32(r), uint32(g), uint32(b)
		}
	default:
		return func(x, y int) (uint32, uint32, uint32) {
			r, g, b, _ := img.At(x, y).RGBA()
			return r >> 8, g >> 8, b >> 8
		}
	}
}

// SampleRegion averages the channels of img inside region.
func SampleRegion(img image.Image, region image.Rectangle, ts time.Time) (ROISample, error) {
	if img == nil {
		return ROISample{}, ErrNilFrame
	}
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return ROISample{}, ErrEmptyRegion
	}

	read := readerFor(img)
	var sumR, sumG, sumB uint64
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			r, g, b := read(x, y)
			sumR += uint64(r)
			sumG += uint64(g)
			sumB += uint64(b)
		}
	}

	n := float64(region.Dx() * region.Dy())
	return newSample(ts, float64(sumR)/n, float64(sumG)/n, float64(sumB)/n), nil
}

// SampleGrid views img as a grid x grid downsample (nearest neighbour) and
// averages the cells in [start, end) on both axes. Only the sampled cells are
// read; no intermediate image is built.
func SampleGrid(img image.Image, grid, start, end int, ts time.Time) (ROISample, error) {
	if img == nil {
		return ROISample{}, ErrNilFrame
	}
	b := img.Bounds()
	if b.Empty() || grid <= 0 || start < 0 || end > grid || start >= end {
		return ROISample{}, ErrEmptyRegion
	}

	read := readerFor(img)
	w, h := b.Dx(), b.Dy()
	var sumR, sumG, sumB uint64
	for gy := start; gy < end; gy++ {
		y := b.Min.Y + (2*gy+1)*h/(2*grid)
		for gx := start; gx < end; gx++ {
			x := b.Min.X + (2*gx+1)*w/(2*grid)
			r, g, bl := read(x, y)
			sumR += uint64(r)
			sumG += uint64(g)
			sumB += uint64(bl)
		}
	}

	n := float64((end - start) * (end - start))
	return newSample(ts, float64(sumR)/n, float64(sumG)/n, float64(sumB)/n), nil
}

func newSample(ts time.Time, r, g, b float64) ROISample {
	return ROISample{
		Timestamp:  ts,
		AvgR:       r,
		AvgG:       g,
		AvgB:       b,
		Brightness: (r + g + b) / 3,
	}
}
