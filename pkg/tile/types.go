package tile

import "fmt"

// Point is a coordinate read from the tile index. Only X and Y take part
// in windowing; Z is carried through for indexes that store it.
type Point struct {
	X, Y, Z float64
}

// BBox is a tile geometry reduced to its axis-aligned bounding box.
type BBox struct {
	ID  int   // record number in the tile index, starting at 0
	Min Point // lower-left corner
	Max Point // upper-right corner
}

// Window is a rectangle in source raster pixel space.
type Window struct {
	X, Y          int
	Width, Height int
}

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool {
	return w.Width <= 0 || w.Height <= 0
}

func (w Window) String() string {
	return fmt.Sprintf("Window(xoff: %d, yoff: %d, width: %d, height: %d)", w.X, w.Y, w.Width, w.Height)
}

// GeoTransform holds the six affine coefficients mapping pixel to geographic
// coordinates, in GDAL order:
//
//	[x_origin, pixel_width, x_skew, y_origin, y_skew, pixel_height]
type GeoTransform [6]float64

// PixelWidth returns the size of one pixel along X.
func (gt GeoTransform) PixelWidth() float64 { return gt[1] }

// PixelHeight returns the size of one pixel along Y, negative for north-up rasters.
func (gt GeoTransform) PixelHeight() float64 { return gt[5] }

// WithOrigin returns a copy of gt translated to the given top-left corner.
func (gt GeoTransform) WithOrigin(x, y float64) GeoTransform {
	out := gt
	out[0] = x
	out[3] = y
	return out
}

// Validate rejects transforms that cannot be inverted by GeoToPixel:
// zero pixel sizes and rotated grids.
func (gt GeoTransform) Validate() error {
	if gt[1] == 0 || gt[5] == 0 {
		return fmt.Errorf("geotransform %v has zero pixel size", [6]float64(gt))
	}
	if gt[2] != 0 || gt[4] != 0 {
		return fmt.Errorf("geotransform %v is rotated, skew terms are not supported", [6]float64(gt))
	}
	return nil
}
