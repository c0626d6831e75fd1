// Package gdalraster implements raster.Driver on top of GDAL using godal.
package gdalraster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/kiesman99/imgdice/internal/raster"
	"github.com/kiesman99/imgdice/pkg/tile"
)

var registerOnce sync.Once

// Register loads every GDAL driver. It is safe to call more than once.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// extension -> GDAL short driver name, for the formats a tile is usually written in
var driversByExt = map[string]string{
	".tif":  "GTiff",
	".tiff": "GTiff",
	".img":  "HFA",
	".vrt":  "VRT",
	".nc":   "netCDF",
	".jp2":  "JP2OpenJPEG",
	".bil":  "EHdr",
	".asc":  "AAIGrid",
	".kea":  "KEA",
	".gpkg": "GPKG",
}

// DriverForPath picks the GDAL driver matching the extension of path,
// falling back to GTiff.
func DriverForPath(path string) string {
	if name, ok := driversByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return name
	}
	return string(godal.GTiff)
}

// Driver opens rasters with any registered GDAL driver and creates new ones
// with a fixed output driver.
type Driver struct {
	name            godal.DriverName
	creationOptions []string
}

// NewDriver returns a Driver creating outputs with the named GDAL driver.
func NewDriver(name string, creationOptions ...string) *Driver {
	Register()
	return &Driver{
		name:            godal.DriverName(name),
		creationOptions: creationOptions,
	}
}

// ForImage returns a Driver for tiles cut from image. Without an override the
// output driver follows the image extension, so tiles keep the extension
// their names are built from.
func ForImage(image, override string, creationOptions ...string) *Driver {
	name := override
	if name == "" {
		name = DriverForPath(image)
	}
	return NewDriver(name, creationOptions...)
}

// Name returns the output driver name.
func (d *Driver) Name() string {
	return string(d.name)
}

func (d *Driver) Open(path string) (raster.Dataset, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, err
	}
	return wrap(ds), nil
}

func (d *Driver) Create(path string, width, height, bands int, dtype raster.DataType) (raster.Dataset, error) {
	gdt, err := toGDAL(dtype)
	if err != nil {
		return nil, err
	}
	var opts []godal.DatasetCreateOption
	if len(d.creationOptions) > 0 {
		opts = append(opts, godal.CreationOption(d.creationOptions...))
	}
	ds, err := godal.Create(d.name, path, bands, gdt, width, height, opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s with %s: %w", path, d.name, err)
	}
	return wrap(ds), nil
}

func (d *Driver) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	// GTiff may leave an auxiliary metadata file next to the raster.
	if err := os.Remove(path + ".aux.xml"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type dataset struct {
	ds    *godal.Dataset
	bands []godal.Band
}

func wrap(ds *godal.Dataset) *dataset {
	return &dataset{ds: ds, bands: ds.Bands()}
}

func (d *dataset) Size() (int, int) {
	st := d.ds.Structure()
	return st.SizeX, st.SizeY
}

func (d *dataset) BandCount() int { return len(d.bands) }

func (d *dataset) GeoTransform() (tile.GeoTransform, error) {
	gt, err := d.ds.GeoTransform()
	if err != nil {
		return tile.GeoTransform{}, err
	}
	return tile.GeoTransform(gt), nil
}

func (d *dataset) SetGeoTransform(gt tile.GeoTransform) error {
	return d.ds.SetGeoTransform([6]float64(gt))
}

func (d *dataset) Projection() string { return d.ds.Projection() }

func (d *dataset) SetProjection(wkt string) error { return d.ds.SetProjection(wkt) }

func (d *dataset) Band(i int) raster.Band {
	return band{d.bands[i-1]}
}

func (d *dataset) Close() error { return d.ds.Close() }

type band struct {
	b godal.Band
}

func (b band) DataType() raster.DataType {
	return fromGDAL(b.b.Structure().DataType)
}

func (b band) NoData() (float64, bool) { return b.b.NoData() }

func (b band) SetNoData(nodata float64) error { return b.b.SetNoData(nodata) }

func (b band) Read(x, y int, buf []float64, width, height int) error {
	return b.b.Read(x, y, buf, width, height)
}

func (b band) Write(x, y int, buf []float64, width, height int) error {
	return b.b.Write(x, y, buf, width, height)
}

func toGDAL(dt raster.DataType) (godal.DataType, error) {
	switch dt {
	case raster.Byte:
		return godal.Byte, nil
	case raster.UInt16:
		return godal.UInt16, nil
	case raster.Int16:
		return godal.Int16, nil
	case raster.UInt32:
		return godal.UInt32, nil
	case raster.Int32:
		return godal.Int32, nil
	case raster.Float32:
		return godal.Float32, nil
	case raster.Float64:
		return godal.Float64, nil
	}
	return godal.Unknown, fmt.Errorf("unsupported data type %v", dt)
}

// fromGDAL maps GDAL types without a raster.DataType (Int8, the 64 bit
// integers, complex types) to raster.Unknown; such sources are rejected
// before any tile is written.
func fromGDAL(dt godal.DataType) raster.DataType {
	switch dt {
	case godal.Byte:
		return raster.Byte
	case godal.UInt16:
		return raster.UInt16
	case godal.Int16:
		return raster.Int16
	case godal.UInt32:
		return raster.UInt32
	case godal.Int32:
		return raster.Int32
	case godal.Float32:
		return raster.Float32
	case godal.Float64:
		return raster.Float64
	}
	return raster.Unknown
}
