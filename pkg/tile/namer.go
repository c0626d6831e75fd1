package tile

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Namer derives output tile paths from the source image name.
type Namer struct {
	OutDir string
	Stem   string
	Ext    string // without the leading dot
}

// NewNamer splits imagePath into stem and extension once. A non-empty prefix
// replaces the stem.
func NewNamer(imagePath, outDir, prefix string) (*Namer, error) {
	base := filepath.Base(imagePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	ext = strings.TrimPrefix(ext, ".")

	if ext == "" {
		return nil, fmt.Errorf("could not parse image extension from %q", imagePath)
	}
	if prefix != "" {
		stem = prefix
	}
	if stem == "" {
		return nil, fmt.Errorf("could not parse image file name stem from %q", imagePath)
	}

	return &Namer{OutDir: outDir, Stem: stem, Ext: ext}, nil
}

// NameFor returns "{out_dir}/{stem}_{x}_{y}.{ext}" where x and y are the
// rounded coordinates of ref, normally the tile's lower-left corner.
// Tiles that round to the same corner share a name.
func (n *Namer) NameFor(ref Point) string {
	name := fmt.Sprintf("%s_%d_%d.%s", n.Stem, int64(math.Round(ref.X)), int64(math.Round(ref.Y)), n.Ext)
	return filepath.Join(n.OutDir, name)
}
