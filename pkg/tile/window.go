package tile

import "math"

// pixelLimit bounds pixel indices. No raster GDAL can open is larger, and
// clipping against the raster size happens afterwards.
const pixelLimit = math.MaxInt32

// GeoToPixel converts a geographic coordinate to the nearest pixel index using
// the origin and pixel size of gt. Halves round away from zero. Results are
// clamped to [-pixelLimit, pixelLimit].
func GeoToPixel(gt GeoTransform, x, y float64) (int, int) {
	return toPixel((x - gt[0]) / gt[1]), toPixel((y - gt[3]) / gt[5])
}

func toPixel(v float64) int {
	switch {
	case math.IsNaN(v):
		return -pixelLimit
	case v >= pixelLimit:
		return pixelLimit
	case v <= -pixelLimit:
		return -pixelLimit
	}
	return int(math.Round(v))
}

// ResolveWindow computes the pixel window covered by the bounding box ll/ur in
// a width x height raster, clipped to the raster bounds. It returns false when
// the box does not overlap the raster.
//
// Geographic Y grows upwards while pixel rows grow downwards, so the lower-left
// corner gives the bottom row and the upper-right corner the top row.
func ResolveWindow(width, height int, gt GeoTransform, ll, ur Point) (Window, bool) {
	llx, lly := GeoToPixel(gt, ll.X, ll.Y)
	urx, ury := GeoToPixel(gt, ur.X, ur.Y)

	w := Window{
		X: max(llx, 0),
		Y: max(ury, 0),
	}
	w.Width = min(width, urx) - w.X
	w.Height = min(height, lly) - w.Y
	if w.Empty() {
		return Window{}, false
	}
	return w, true
}
