package dice

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/kiesman99/imgdice/pkg/tile"
)

// ConfigurationError is a setup failure detected before any tile is dispatched:
// unreadable image or tile index, unusable geotransform, bad options.
type ConfigurationError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TileError is a failure confined to one tile.
type TileError struct {
	Tile   tile.BBox
	Path   string
	Window tile.Window
	Err    error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile %d (%s): %v", e.Tile.ID, e.Path, e.Err)
}

func (e *TileError) Unwrap() error {
	return e.Err
}

// Report summarises a run. It is safe for concurrent use while the run is
// in progress.
type Report struct {
	mu        sync.Mutex
	written   []string
	skipped   int
	invalid   int
	cancelled int
	failures  []*TileError
}

func (r *Report) addWritten(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written = append(r.written, path)
}

func (r *Report) addSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

func (r *Report) addInvalid() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalid++
}

func (r *Report) addCancelled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled++
}

func (r *Report) addFailure(err *TileError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

// Written returns the paths of all tiles written, sorted.
func (r *Report) Written() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.written...)
	sort.Strings(out)
	return out
}

// Skipped returns the number of tiles that did not overlap the image.
func (r *Report) Skipped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

// Invalid returns the number of tile index records skipped as malformed.
func (r *Report) Invalid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invalid
}

// Cancelled returns the number of dispatched tiles that never started
// because the run was cancelled.
func (r *Report) Cancelled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Failures returns the tile errors, ordered by tile index record.
func (r *Report) Failures() []*TileError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]*TileError(nil), r.failures...)
	sort.Slice(out, func(i, j int) bool { return out[i].Tile.ID < out[j].Tile.ID })
	return out
}

// Err combines all tile failures into one error, nil if every tile succeeded.
func (r *Report) Err() error {
	var err error
	for _, f := range r.Failures() {
		err = multierr.Append(err, f)
	}
	return err
}

func (r *Report) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("%d written, %d skipped, %d failed, %d invalid, %d cancelled",
		len(r.written), r.skipped, len(r.failures), r.invalid, r.cancelled)
}
