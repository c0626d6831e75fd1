// Package dice cuts a georeferenced raster into tiles along the polygons of
// a tile index.
package dice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/imgdice/internal/raster"
	"github.com/kiesman99/imgdice/internal/tileindex"
	"github.com/kiesman99/imgdice/pkg/tile"
)

// Publisher receives the files of every tile after they have been written
// and closed: the raster, followed by its world file when one was written.
type Publisher interface {
	Publish(ctx context.Context, paths ...string) error
}

// Progress is advanced once per tile taken from the index.
// *progressbar.ProgressBar satisfies it.
type Progress interface {
	Add(num int) error
}

// Dicer runs the tile pipeline for one source image.
type Dicer struct {
	opts   Options
	driver raster.Driver
	namer  *tile.Namer
	writer *TileWriter

	// OpenIndex opens the tile index; defaults to tileindex.Open.
	OpenIndex func(path string) (tileindex.Reader, error)
	// Out receives one "Created {path}" line per tile; defaults to stdout.
	Out io.Writer
	// Logger reports tile failures and skipped records; defaults to stderr.
	Logger *log.Logger

	Publisher Publisher
	Progress  Progress

	outMu sync.Mutex
}

// New creates a Dicer reading and writing rasters through driver.
func New(opts Options, driver raster.Driver) (*Dicer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	namer, err := tile.NewNamer(opts.ImagePath, opts.OutDir, opts.Prefix)
	if err != nil {
		return nil, &ConfigurationError{Op: "name tiles", Path: opts.ImagePath, Err: err}
	}

	return &Dicer{
		opts:      opts,
		driver:    driver,
		namer:     namer,
		writer:    &TileWriter{Driver: driver, WorldFile: opts.WorldFile},
		OpenIndex: tileindex.Open,
		Out:       os.Stdout,
		Logger:    log.New(os.Stderr, "", log.LstdFlags),
	}, nil
}

type sourceInfo struct {
	width, height int
	transform     tile.GeoTransform
}

// inspect reads the source metadata once, before dispatch. Tile tasks open
// their own handles.
func (d *Dicer) inspect() (sourceInfo, error) {
	path := d.opts.ImagePath
	src, err := d.driver.Open(path)
	if err != nil {
		return sourceInfo{}, &ConfigurationError{Op: "open image", Path: path, Err: err}
	}
	defer src.Close()

	if src.BandCount() == 0 {
		return sourceInfo{}, &ConfigurationError{Op: "open image", Path: path, Err: errors.New("no raster bands")}
	}
	gt, err := src.GeoTransform()
	if err != nil {
		return sourceInfo{}, &ConfigurationError{Op: "read geotransform", Path: path, Err: err}
	}
	if err := gt.Validate(); err != nil {
		return sourceInfo{}, &ConfigurationError{Op: "read geotransform", Path: path, Err: err}
	}
	if err := checkBandTypes(src); err != nil {
		return sourceInfo{}, &ConfigurationError{Op: "read band types", Path: path, Err: err}
	}

	w, h := src.Size()
	return sourceInfo{width: w, height: h, transform: gt}, nil
}

// checkBandTypes requires every band to share one supported data type. Tiles
// are created with a single type and pixels travel through float64, which
// holds every supported type exactly.
func checkBandTypes(src raster.Dataset) error {
	first := src.Band(1).DataType()
	for b := 1; b <= src.BandCount(); b++ {
		dt := src.Band(b).DataType()
		if dt == raster.Unknown {
			return fmt.Errorf("band %d has an unsupported data type", b)
		}
		if dt != first {
			return fmt.Errorf("band %d is %v, band 1 is %v", b, dt, first)
		}
	}
	return nil
}

// Run dices the image. It returns once every dispatched tile has finished.
//
// Tile failures are recorded in the report and do not stop the run unless
// FailFast is set. Setup problems, tile index read errors and (without
// SkipInvalid) malformed index records abort the run.
func (d *Dicer) Run(ctx context.Context) (*Report, error) {
	info, err := d.inspect()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.opts.OutDir, 0755); err != nil {
		return nil, &ConfigurationError{Op: "create output directory", Path: d.opts.OutDir, Err: err}
	}
	index, err := d.OpenIndex(d.opts.IndexPath)
	if err != nil {
		return nil, &ConfigurationError{Op: "open tile index", Path: d.opts.IndexPath, Err: err}
	}
	defer index.Close()

	report := &Report{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Threads)

	var indexErr error
	for gctx.Err() == nil {
		bbox, err := index.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var gerr *tileindex.GeometryError
			if errors.As(err, &gerr) && d.opts.SkipInvalid {
				report.addInvalid()
				d.Logger.Printf("Skipping %v", gerr)
				d.advance()
				continue
			}
			if gerr == nil {
				err = &ConfigurationError{Op: "read tile index", Path: d.opts.IndexPath, Err: err}
			}
			indexErr = err
			break
		}

		window, ok := tile.ResolveWindow(info.width, info.height, info.transform, bbox.Min, bbox.Max)
		if !ok {
			report.addSkipped()
			d.advance()
			continue
		}
		task := Task{Tile: bbox, Window: window, Path: d.namer.NameFor(bbox.Min)}
		g.Go(func() error {
			return d.runTask(gctx, task, report)
		})
	}

	waitErr := g.Wait()
	switch {
	case indexErr != nil:
		return report, indexErr
	case waitErr != nil:
		return report, fmt.Errorf("run aborted: %w", waitErr)
	case ctx.Err() != nil:
		return report, ctx.Err()
	}
	return report, nil
}

func (d *Dicer) runTask(ctx context.Context, t Task, report *Report) error {
	defer d.advance()
	if ctx.Err() != nil {
		report.addCancelled()
		return nil
	}

	if err := d.processTile(ctx, t); err != nil {
		terr := &TileError{Tile: t.Tile, Path: t.Path, Window: t.Window, Err: err}
		report.addFailure(terr)
		d.Logger.Printf("Failed %v", terr)
		if d.opts.FailFast {
			return terr
		}
		return nil
	}

	report.addWritten(t.Path)
	d.outMu.Lock()
	fmt.Fprintf(d.Out, "Created %s\n", t.Path)
	d.outMu.Unlock()
	return nil
}

func (d *Dicer) processTile(ctx context.Context, t Task) error {
	src, err := d.driver.Open(d.opts.ImagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer src.Close()

	if err := d.writer.WriteTile(src, t); err != nil {
		return err
	}
	if d.Publisher != nil {
		files := []string{t.Path}
		if d.opts.WorldFile {
			files = append(files, tile.WorldFilePath(t.Path))
		}
		if err := d.Publisher.Publish(ctx, files...); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	return nil
}

func (d *Dicer) advance() {
	if d.Progress != nil {
		d.Progress.Add(1)
	}
}
