package dice

import (
	"fmt"
)

// Options contains all configuration for one dicing run.
type Options struct {
	ImagePath string // source raster
	IndexPath string // tile index with one polygon per output tile
	OutDir    string

	Threads     int  // concurrent tile tasks, at least 1
	FailFast    bool // stop dispatching after the first tile failure
	SkipInvalid bool // skip non-polygon index records instead of aborting

	Prefix    string // replaces the image stem in tile names when set
	WorldFile bool   // write a world file next to every tile
}

// Validate checks the options and fills in defaults.
func (o *Options) Validate() error {
	if o.ImagePath == "" {
		return &ConfigurationError{Op: "options", Err: fmt.Errorf("image path is required")}
	}
	if o.IndexPath == "" {
		return &ConfigurationError{Op: "options", Err: fmt.Errorf("tile index path is required")}
	}
	if o.OutDir == "" {
		return &ConfigurationError{Op: "options", Err: fmt.Errorf("output directory is required")}
	}
	if o.Threads == 0 {
		o.Threads = 1
	}
	if o.Threads < 0 {
		return &ConfigurationError{Op: "options", Err: fmt.Errorf("threads must be positive, got %d", o.Threads)}
	}
	return nil
}
