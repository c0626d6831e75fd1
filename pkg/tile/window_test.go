package tile

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// 1000x1000 pixels, one unit per pixel, row 0 at y=1000.
var northUp = GeoTransform{0, 1, 0, 1000, 0, -1}

func TestGeoToPixel(t *testing.T) {
	tests := []struct {
		name   string
		gt     GeoTransform
		x, y   float64
		px, py int
	}{
		{"origin", northUp, 0, 1000, 0, 0},
		{"interior", northUp, 100, 100, 100, 900},
		{"half rounds up", GeoTransform{0, 2, 0, 0, 0, -2}, 1, -1, 1, 1},
		{"negative half rounds away from zero", GeoTransform{0, 2, 0, 0, 0, -2}, -1, 1, -1, -1},
		{"below half rounds down", GeoTransform{0, 10, 0, 0, 0, -10}, 14.9, -14.9, 1, 1},
		{"offset origin", GeoTransform{500000, 0.5, 0, 4200000, 0, -0.5}, 500010, 4199990, 20, 20},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			px, py := GeoToPixel(tc.gt, tc.x, tc.y)
			if px != tc.px || py != tc.py {
				t.Errorf("GeoToPixel(%v, %v) = (%d, %d), want (%d, %d)", tc.x, tc.y, px, py, tc.px, tc.py)
			}
		})
	}
}

func TestResolveWindow(t *testing.T) {
	tests := []struct {
		name   string
		ll, ur Point
		want   Window
		ok     bool
	}{
		{
			name: "inside",
			ll:   Point{X: 100, Y: 100},
			ur:   Point{X: 300, Y: 300},
			want: Window{X: 100, Y: 700, Width: 200, Height: 200},
			ok:   true,
		},
		{
			name: "whole raster",
			ll:   Point{X: 0, Y: 0},
			ur:   Point{X: 1000, Y: 1000},
			want: Window{X: 0, Y: 0, Width: 1000, Height: 1000},
			ok:   true,
		},
		{
			name: "overlaps lower right",
			ll:   Point{X: 900, Y: -100},
			ur:   Point{X: 1100, Y: 100},
			want: Window{X: 900, Y: 900, Width: 100, Height: 100},
			ok:   true,
		},
		{
			name: "overlaps upper left",
			ll:   Point{X: -50, Y: 950},
			ur:   Point{X: 50, Y: 1050},
			want: Window{X: 0, Y: 0, Width: 50, Height: 50},
			ok:   true,
		},
		{
			name: "larger than raster",
			ll:   Point{X: -10, Y: -10},
			ur:   Point{X: 2000, Y: 2000},
			want: Window{X: 0, Y: 0, Width: 1000, Height: 1000},
			ok:   true,
		},
		{
			name: "entirely negative",
			ll:   Point{X: -500, Y: -500},
			ur:   Point{X: -100, Y: -100},
		},
		{
			name: "east of raster",
			ll:   Point{X: 1000, Y: 0},
			ur:   Point{X: 1200, Y: 200},
		},
		{
			name: "north of raster",
			ll:   Point{X: 0, Y: 1000},
			ur:   Point{X: 200, Y: 1200},
		},
		{
			name: "degenerate",
			ll:   Point{X: 100, Y: 100},
			ur:   Point{X: 100.2, Y: 300},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResolveWindow(1000, 1000, northUp, tc.ll, tc.ur)
			if ok != tc.ok {
				t.Fatalf("ResolveWindow ok = %v, want %v (window %v)", ok, tc.ok, got)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ResolveWindow mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveWindowProperties(t *testing.T) {
	const width, height = 800, 600
	gt := GeoTransform{2600000, 0.25, 0, 1200000, 0, -0.25}
	extentX := float64(width) * gt.PixelWidth()
	extentY := float64(height) * -gt.PixelHeight()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		// Boxes anywhere in a region three times the raster extent.
		llx := gt[0] - extentX + rng.Float64()*3*extentX
		lly := gt[3] - 2*extentY + rng.Float64()*3*extentY
		ll := Point{X: llx, Y: lly}
		ur := Point{X: llx + rng.Float64()*extentX/2, Y: lly + rng.Float64()*extentY/2}

		w, ok := ResolveWindow(width, height, gt, ll, ur)
		if !ok {
			continue
		}
		if w.X < 0 || w.Y < 0 || w.X+w.Width > width || w.Y+w.Height > height {
			t.Fatalf("window %v for %v-%v escapes %dx%d raster", w, ll, ur, width, height)
		}

		inside := ll.X >= gt[0] && ur.X <= gt[0]+extentX && ll.Y >= gt[3]-extentY && ur.Y <= gt[3]
		if !inside {
			continue
		}
		wantWidth := int(math.Round((ur.X - ll.X) / gt.PixelWidth()))
		if d := w.Width - wantWidth; d < -1 || d > 1 {
			t.Errorf("window %v for %v-%v: width %d, want %d±1", w, ll, ur, w.Width, wantWidth)
		}
		wantHeight := int(math.Round((ur.Y - ll.Y) / -gt.PixelHeight()))
		if d := w.Height - wantHeight; d < -1 || d > 1 {
			t.Errorf("window %v for %v-%v: height %d, want %d±1", w, ll, ur, w.Height, wantHeight)
		}
	}
}

func TestGeoTransformValidate(t *testing.T) {
	if err := northUp.Validate(); err != nil {
		t.Errorf("Validate(%v) failed: %v", northUp, err)
	}
	for _, gt := range []GeoTransform{
		{0, 0, 0, 1000, 0, -1},
		{0, 1, 0, 1000, 0, 0},
		{0, 1, 0.1, 1000, 0, -1},
		{0, 1, 0, 1000, 0.1, -1},
	} {
		if err := gt.Validate(); err == nil {
			t.Errorf("Validate(%v) expected error", gt)
		}
	}
}

func TestGeoTransformWithOrigin(t *testing.T) {
	got := northUp.WithOrigin(100.25, 300.75)
	want := GeoTransform{100.25, 1, 0, 300.75, 0, -1}
	if got != want {
		t.Errorf("WithOrigin = %v, want %v", got, want)
	}
	if northUp[0] != 0 || northUp[3] != 1000 {
		t.Errorf("WithOrigin modified the receiver: %v", northUp)
	}
}

func TestGeoToPixelClamps(t *testing.T) {
	fine := GeoTransform{0, 1e-12, 0, 1000, 0, -1e-12}
	tests := []struct {
		name   string
		x, y   float64
		px, py int
	}{
		{"far east and south", 1e8, -1e8, pixelLimit, pixelLimit},
		{"far west and north", -1e8, 1e8, -pixelLimit, -pixelLimit},
		{"not a number", math.NaN(), 1000, -pixelLimit, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			px, py := GeoToPixel(fine, tc.x, tc.y)
			if px != tc.px || py != tc.py {
				t.Errorf("GeoToPixel(%v, %v) = (%d, %d), want (%d, %d)", tc.x, tc.y, px, py, tc.px, tc.py)
			}
		})
	}
}

func TestResolveWindowHugePixelCoordinates(t *testing.T) {
	// Tiny pixels along X put the upper-right corner past the int64 range.
	gt := GeoTransform{0, 1e-12, 0, 1000, 0, -1}
	got, ok := ResolveWindow(1000, 1000, gt, Point{X: 0, Y: 500}, Point{X: 1e8, Y: 1000})
	if !ok {
		t.Fatalf("ResolveWindow skipped an overlapping tile (window %v)", got)
	}
	want := Window{X: 0, Y: 0, Width: 1000, Height: 500}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ResolveWindow mismatch (-want +got):\n%s", diff)
	}
}
