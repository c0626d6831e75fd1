package dice

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kiesman99/imgdice/internal/raster"
	"github.com/kiesman99/imgdice/internal/raster/rastertest"
	"github.com/kiesman99/imgdice/pkg/tile"
)

func openSource(t *testing.T, driver *rastertest.Driver) raster.Dataset {
	t.Helper()
	src, err := driver.Open(imagePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func TestWriteTileKeepsBandLayout(t *testing.T) {
	driver := rastertest.NewDriver()
	ds := rastertest.NewDataset(50, 40, 4, tile.GeoTransform{500, 2, 0, 800, 0, -2}, pixelValue)
	for i, b := range ds.Bands {
		b.Type = raster.Int16
		if i%2 == 0 {
			b.NoData, b.HasNoData = -9999, true
		}
	}
	driver.Add(imagePath, ds)

	task := Task{
		Tile:   tile.BBox{Min: tile.Point{X: 510, Y: 740}, Max: tile.Point{X: 530, Y: 760}},
		Window: tile.Window{X: 5, Y: 20, Width: 10, Height: 10},
		Path:   "out/scene_510_740.tif",
	}
	w := &TileWriter{Driver: driver}
	if err := w.WriteTile(openSource(t, driver), task); err != nil {
		t.Fatalf("WriteTile failed: %v", err)
	}

	out, ok := driver.Get(task.Path)
	if !ok {
		t.Fatal("output not created")
	}
	if want := (tile.GeoTransform{510, 2, 0, 760, 0, -2}); out.Transform != want {
		t.Errorf("transform = %v, want %v", out.Transform, want)
	}
	if len(out.Bands) != 4 {
		t.Fatalf("got %d bands, want 4", len(out.Bands))
	}
	for i, b := range out.Bands {
		want := &rastertest.Band{
			Type:      raster.Int16,
			Pix:       ds.Window(i+1, task.Window),
			NoData:    ds.Bands[i].NoData,
			HasNoData: ds.Bands[i].HasNoData,
		}
		if diff := cmp.Diff(want, b); diff != "" {
			t.Errorf("band %d mismatch (-want +got):\n%s", i+1, diff)
		}
	}
}

func TestWriteTileRemovesPartialOutput(t *testing.T) {
	driver := rastertest.NewDriver()
	driver.Add(imagePath, rastertest.NewDataset(20, 20, 3, northUp, pixelValue))
	driver.FailWrite = func(_ string, band int) error {
		if band == 3 {
			return errors.New("short write")
		}
		return nil
	}

	task := Task{Window: tile.Window{Width: 5, Height: 5}, Path: "out/a_0_0.tif"}
	w := &TileWriter{Driver: driver}
	if err := w.WriteTile(openSource(t, driver), task); err == nil {
		t.Fatal("WriteTile expected error")
	}
	if _, ok := driver.Get(task.Path); ok {
		t.Errorf("partial output %s left behind", task.Path)
	}
}

func TestWriteTileOutOfBoundsWindow(t *testing.T) {
	driver := rastertest.NewDriver()
	driver.Add(imagePath, rastertest.NewDataset(20, 20, 1, northUp, pixelValue))

	w := &TileWriter{Driver: driver}
	tests := []struct {
		name   string
		window tile.Window
	}{
		{"empty", tile.Window{X: 3, Y: 3}},
		{"past edge", tile.Window{X: 15, Y: 0, Width: 10, Height: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := Task{Window: tt.window, Path: "out/" + tt.name + ".tif"}
			if err := w.WriteTile(openSource(t, driver), task); err == nil {
				t.Errorf("WriteTile(%v) expected error", tt.window)
			}
			if _, ok := driver.Get(task.Path); ok {
				t.Errorf("output %s left behind", task.Path)
			}
		})
	}
}
