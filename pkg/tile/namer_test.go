package tile

import (
	"path/filepath"
	"testing"
)

func TestNamer(t *testing.T) {
	outDir := filepath.Join("out", "tiles")
	tests := []struct {
		image, prefix string
		ref           Point
		want          string
	}{
		{"/data/ortho.tif", "", Point{X: 100, Y: 200}, "ortho_100_200.tif"},
		{"/data/ortho.tif", "", Point{X: 100.4, Y: 200.6}, "ortho_100_201.tif"},
		{"/data/ortho.tif", "", Point{X: 2600000.5, Y: 1199999.5}, "ortho_2600001_1200000.tif"},
		{"/data/ortho.tif", "", Point{X: -0.5, Y: -10.2}, "ortho_-1_-10.tif"},
		{"scene.v2.img", "", Point{X: 1, Y: 2}, "scene.v2_1_2.img"},
		{"/data/ortho.tif", "dop", Point{X: 1, Y: 2}, "dop_1_2.tif"},
	}

	for _, tc := range tests {
		n, err := NewNamer(tc.image, outDir, tc.prefix)
		if err != nil {
			t.Fatalf("NewNamer(%q) failed: %v", tc.image, err)
		}
		if got, want := n.NameFor(tc.ref), filepath.Join(outDir, tc.want); got != want {
			t.Errorf("NameFor(%v) for %q = %q, want %q", tc.ref, tc.image, got, want)
		}
	}
}

func TestNamerErrors(t *testing.T) {
	for _, image := range []string{"/data/ortho", "/data/", ".tif"} {
		if _, err := NewNamer(image, "out", ""); err == nil {
			t.Errorf("NewNamer(%q) expected error", image)
		}
	}
}
