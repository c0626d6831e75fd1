package dice

import (
	"errors"
	"fmt"

	"github.com/kiesman99/imgdice/internal/raster"
	"github.com/kiesman99/imgdice/pkg/tile"
)

// Task is the unit of work for one tile.
type Task struct {
	Tile   tile.BBox
	Window tile.Window
	Path   string
}

// TileWriter copies a window of a source raster into a new raster file.
type TileWriter struct {
	Driver    raster.Driver
	WorldFile bool
}

// WriteTile creates t.Path with the size of t.Window and the band layout of
// src, then copies every band's window into it. The output keeps the source
// pixel size and projection; its origin is the tile's own upper-left corner
// (ll.X, ur.Y) rather than the rounded pixel edge.
//
// On failure the partially written file is removed.
func (w *TileWriter) WriteTile(src raster.Dataset, t Task) (err error) {
	if t.Window.Empty() {
		return fmt.Errorf("empty window %v", t.Window)
	}
	nBands := src.BandCount()
	if nBands == 0 {
		return errors.New("source raster has no bands")
	}
	gt, err := src.GeoTransform()
	if err != nil {
		return fmt.Errorf("read geotransform: %w", err)
	}

	out, err := w.Driver.Create(t.Path, t.Window.Width, t.Window.Height, nBands, src.Band(1).DataType())
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
		if err != nil {
			w.Driver.Remove(t.Path)
		}
	}()

	if wkt := src.Projection(); wkt != "" {
		if err := out.SetProjection(wkt); err != nil {
			return fmt.Errorf("set projection: %w", err)
		}
	}
	outGT := gt.WithOrigin(t.Tile.Min.X, t.Tile.Max.Y)
	if err := out.SetGeoTransform(outGT); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}

	win := t.Window
	buf := make([]float64, win.Width*win.Height)
	for b := 1; b <= nBands; b++ {
		in, dst := src.Band(b), out.Band(b)
		if nodata, ok := in.NoData(); ok {
			if err := dst.SetNoData(nodata); err != nil {
				return fmt.Errorf("set nodata on band %d: %w", b, err)
			}
		}
		if err := in.Read(win.X, win.Y, buf, win.Width, win.Height); err != nil {
			return fmt.Errorf("read band %d: %w", b, err)
		}
		if err := dst.Write(0, 0, buf, win.Width, win.Height); err != nil {
			return fmt.Errorf("write band %d: %w", b, err)
		}
	}

	if w.WorldFile {
		if _, err := tile.WriteWorldFile(t.Path, outGT); err != nil {
			return fmt.Errorf("write world file: %w", err)
		}
	}
	return nil
}
