// Package rastertest provides an in-memory raster.Driver for tests.
package rastertest

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kiesman99/imgdice/internal/raster"
	"github.com/kiesman99/imgdice/pkg/tile"
)

// Driver keeps rasters in memory, keyed by path. It is safe for concurrent use.
type Driver struct {
	mu       sync.Mutex
	datasets map[string]*Dataset
	opens    atomic.Int64

	// FailCreate, if set, is consulted before every Create.
	FailCreate func(path string) error
	// FailWrite, if set, is consulted before every band write.
	FailWrite func(path string, band int) error
}

// NewDriver returns an empty Driver.
func NewDriver() *Driver {
	return &Driver{datasets: make(map[string]*Dataset)}
}

// Add registers ds under path.
func (d *Driver) Add(path string, ds *Dataset) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.datasets[path] = ds
}

// Get returns the dataset stored at path.
func (d *Driver) Get(path string) (*Dataset, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ds, ok := d.datasets[path]
	return ds, ok
}

// Paths returns all stored paths in sorted order.
func (d *Driver) Paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	paths := make([]string, 0, len(d.datasets))
	for p := range d.datasets {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Opens returns how many times Open succeeded.
func (d *Driver) Opens() int {
	return int(d.opens.Load())
}

func (d *Driver) Open(path string) (raster.Dataset, error) {
	ds, ok := d.Get(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	d.opens.Add(1)
	return &handle{ds: ds, driver: d, path: path}, nil
}

func (d *Driver) Create(path string, width, height, bands int, dtype raster.DataType) (raster.Dataset, error) {
	if d.FailCreate != nil {
		if err := d.FailCreate(path); err != nil {
			return nil, err
		}
	}
	if width <= 0 || height <= 0 || bands <= 0 {
		return nil, fmt.Errorf("invalid dataset dimensions %dx%dx%d", width, height, bands)
	}
	ds := &Dataset{Width: width, Height: height}
	for i := 0; i < bands; i++ {
		ds.Bands = append(ds.Bands, &Band{Type: dtype, Pix: make([]float64, width*height)})
	}
	d.Add(path, ds)
	return &handle{ds: ds, driver: d, path: path}, nil
}

func (d *Driver) Remove(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.datasets, path)
	return nil
}

// Dataset is an in-memory raster. Pixels are stored row-major per band.
type Dataset struct {
	Width, Height int
	Transform     tile.GeoTransform
	WKT           string
	Bands         []*Band
}

// Band holds the pixels of one band.
type Band struct {
	Type      raster.DataType
	Pix       []float64
	NoData    float64
	HasNoData bool
}

// NewDataset builds a width x height raster with the given band count.
// Pixel values come from fill, which receives the 1-based band index.
func NewDataset(width, height, bands int, gt tile.GeoTransform, fill func(band, x, y int) float64) *Dataset {
	ds := &Dataset{Width: width, Height: height, Transform: gt}
	for b := 1; b <= bands; b++ {
		pix := make([]float64, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				pix[y*width+x] = fill(b, x, y)
			}
		}
		ds.Bands = append(ds.Bands, &Band{Type: raster.Float32, Pix: pix})
	}
	return ds
}

// Window returns a copy of the pixels of band b (1-based) inside w.
func (ds *Dataset) Window(b int, w tile.Window) []float64 {
	out := make([]float64, 0, w.Width*w.Height)
	pix := ds.Bands[b-1].Pix
	for y := w.Y; y < w.Y+w.Height; y++ {
		out = append(out, pix[y*ds.Width+w.X:y*ds.Width+w.X+w.Width]...)
	}
	return out
}

var errClosed = errors.New("rastertest: dataset is closed")

type handle struct {
	ds     *Dataset
	driver *Driver
	path   string
	closed bool
}

func (h *handle) Size() (int, int) { return h.ds.Width, h.ds.Height }

func (h *handle) BandCount() int { return len(h.ds.Bands) }

func (h *handle) GeoTransform() (tile.GeoTransform, error) {
	if h.closed {
		return tile.GeoTransform{}, errClosed
	}
	return h.ds.Transform, nil
}

func (h *handle) SetGeoTransform(gt tile.GeoTransform) error {
	if h.closed {
		return errClosed
	}
	h.ds.Transform = gt
	return nil
}

func (h *handle) Projection() string { return h.ds.WKT }

func (h *handle) SetProjection(wkt string) error {
	if h.closed {
		return errClosed
	}
	h.ds.WKT = wkt
	return nil
}

func (h *handle) Band(i int) raster.Band {
	return &bandHandle{h: h, index: i, band: h.ds.Bands[i-1]}
}

func (h *handle) Close() error {
	if h.closed {
		return fmt.Errorf("close called more than once")
	}
	h.closed = true
	return nil
}

type bandHandle struct {
	h     *handle
	index int
	band  *Band
}

func (b *bandHandle) DataType() raster.DataType { return b.band.Type }

func (b *bandHandle) NoData() (float64, bool) { return b.band.NoData, b.band.HasNoData }

func (b *bandHandle) SetNoData(nodata float64) error {
	b.band.NoData = nodata
	b.band.HasNoData = true
	return nil
}

func (b *bandHandle) check(x, y int, buf []float64, width, height int) error {
	if b.h.closed {
		return errClosed
	}
	if x < 0 || y < 0 || width <= 0 || height <= 0 || x+width > b.h.ds.Width || y+height > b.h.ds.Height {
		return fmt.Errorf("access window %d,%d %dx%d out of bounds for %dx%d raster",
			x, y, width, height, b.h.ds.Width, b.h.ds.Height)
	}
	if len(buf) < width*height {
		return fmt.Errorf("buffer of %d pixels too small for %dx%d window", len(buf), width, height)
	}
	return nil
}

func (b *bandHandle) Read(x, y int, buf []float64, width, height int) error {
	if err := b.check(x, y, buf, width, height); err != nil {
		return err
	}
	stride := b.h.ds.Width
	for row := 0; row < height; row++ {
		src := (y+row)*stride + x
		copy(buf[row*width:(row+1)*width], b.band.Pix[src:src+width])
	}
	return nil
}

func (b *bandHandle) Write(x, y int, buf []float64, width, height int) error {
	if err := b.check(x, y, buf, width, height); err != nil {
		return err
	}
	if f := b.h.driver.FailWrite; f != nil {
		if err := f(b.h.path, b.index); err != nil {
			return err
		}
	}
	stride := b.h.ds.Width
	for row := 0; row < height; row++ {
		dst := (y+row)*stride + x
		copy(b.band.Pix[dst:dst+width], buf[row*width:(row+1)*width])
	}
	return nil
}
