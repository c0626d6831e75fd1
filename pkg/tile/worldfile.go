package tile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorldFilePath returns the sidecar name for a raster: the first and last
// letters of its extension followed by "w" (".tif" -> ".tfw").
func WorldFilePath(rasterPath string) string {
	ext := filepath.Ext(rasterPath)
	base := strings.TrimSuffix(rasterPath, ext)
	e := strings.TrimPrefix(ext, ".")
	switch len(e) {
	case 0:
		return rasterPath + ".wld"
	case 1:
		return base + "." + e + "w"
	}
	return base + "." + e[:1] + e[len(e)-1:] + "w"
}

// WriteWorldFile writes the world file for a raster with transform gt.
// World files reference the centre of the top-left pixel.
func WriteWorldFile(rasterPath string, gt GeoTransform) (string, error) {
	worldFilename := WorldFilePath(rasterPath)

	file, err := os.Create(worldFilename)
	if err != nil {
		return "", err
	}

	// pixel size x, rotation, rotation, pixel size y, centre x, centre y
	lines := []float64{
		gt[1],
		gt[4],
		gt[2],
		gt[5],
		gt[0] + gt[1]/2,
		gt[3] + gt[5]/2,
	}
	for _, v := range lines {
		if _, err := fmt.Fprintf(file, "%24.10f\n", v); err != nil {
			file.Close()
			return "", err
		}
	}

	return worldFilename, file.Close()
}
