package tileindex

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kiesman99/imgdice/pkg/tile"
)

// GeoJSONReader streams polygon features from a GeoJSON FeatureCollection.
// Only one feature is held in memory at a time. Members of the collection
// that follow the "features" array are not read.
type GeoJSONReader struct {
	f    *os.File
	dec  *json.Decoder
	next int
	done bool
	err  error
}

// OpenGeoJSON opens the FeatureCollection at path and positions the reader
// at the first feature.
func OpenGeoJSON(path string) (*GeoJSONReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bufio.NewReader(f))
	if err := seekFeatures(dec); err != nil {
		f.Close()
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &GeoJSONReader{f: f, dec: dec}, nil
}

// seekFeatures consumes tokens up to and including the opening bracket of
// the top-level "features" array.
func seekFeatures(dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok {
		case "features":
			return expectDelim(dec, '[')
		case "type":
			var typ string
			if err := dec.Decode(&typ); err != nil {
				return err
			}
			if typ != "FeatureCollection" {
				return fmt.Errorf("type is %q, want FeatureCollection", typ)
			}
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return err
			}
		}
	}
	return errors.New("no features member")
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	if err != nil {
		return err
	}
	if tok != want {
		return fmt.Errorf("found %v, want %v", tok, want)
	}
	return nil
}

// Next decodes the next feature. A feature that is not valid GeoJSON yields a
// *GeometryError; a document that is not valid JSON stops the reader.
func (r *GeoJSONReader) Next() (tile.BBox, error) {
	if r.err != nil {
		return tile.BBox{}, r.err
	}
	if r.done {
		return tile.BBox{}, io.EOF
	}
	if !r.dec.More() {
		if err := expectDelim(r.dec, ']'); err != nil {
			r.err = fmt.Errorf("features array: %w", err)
			return tile.BBox{}, r.err
		}
		r.done = true
		return tile.BBox{}, io.EOF
	}

	var raw json.RawMessage
	if err := r.dec.Decode(&raw); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		r.err = fmt.Errorf("feature %d: %w", r.next, err)
		return tile.BBox{}, r.err
	}
	id := r.next
	r.next++

	f, err := geojson.UnmarshalFeature(raw)
	if err != nil {
		return tile.BBox{}, &GeometryError{ID: id, Type: "invalid", Err: err}
	}

	g := f.Geometry
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	case nil:
		return tile.BBox{}, &GeometryError{ID: id, Type: "null"}
	default:
		return tile.BBox{}, &GeometryError{ID: id, Type: g.GeoJSONType()}
	}

	b := g.Bound()
	return tile.BBox{
		ID:  id,
		Min: tile.Point{X: b.Min.X(), Y: b.Min.Y()},
		Max: tile.Point{X: b.Max.X(), Y: b.Max.Y()},
	}, nil
}

func (r *GeoJSONReader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
