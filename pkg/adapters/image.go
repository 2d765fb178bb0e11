/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: image.go
Description: Image metadata adapter. One record per image with its format and
dimensions plus common EXIF fields when present. Images without EXIF still yield
a record; bytes that are neither a decodable image nor EXIF are a format error.
*/

package adapters

import (
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

var exifFields = []struct {
	key  string
	name exif.FieldName
}{
	{"make", exif.Make},
	{"model", exif.Model},
	{"software", exif.Software},
	{"lens_model", exif.LensModel},
	{"orientation", exif.Orientation},
	{"f_number", exif.FNumber},
	{"exposure_time", exif.ExposureTime},
	{"iso", exif.ISOSpeedRatings},
	{"focal_length", exif.FocalLength},
}

func openImage(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	b := newBase(in)
	f, size, err := in.Source.Materialize(in.Options.SpoolDir)
	if err != nil {
		return nil, err
	}

	m := value.NewMappingBuilder(len(exifFields) + 6)
	cfg, kind, cfgErr := image.DecodeConfig(io.NewSectionReader(f, 0, size))
	if cfgErr == nil {
		m.Set("format", value.String(kind))
		m.Set("width", value.Int(int64(cfg.Width)))
		m.Set("height", value.Int(int64(cfg.Height)))
	} else {
		m.Set("format", value.String(strings.TrimPrefix(in.Source.Ext(), ".")))
	}

	x, exifErr := exif.Decode(io.NewSectionReader(f, 0, size))
	if exifErr == nil {
		addExif(m, x)
	} else if cfgErr != nil {
		return nil, b.formatError(errors.Join(cfgErr, exifErr))
	}

	prov := b.prov
	prov.Row = 1
	return &sliceStream{base: b, records: []value.Record{b.record(m.Build(), prov)}}, nil
}

func addExif(m *value.MappingBuilder, x *exif.Exif) {
	for _, field := range exifFields {
		tag, err := x.Get(field.name)
		if err != nil {
			continue
		}
		if v, ok := tagValue(tag); ok {
			m.Set(field.key, v)
		}
	}
	if t, err := x.DateTime(); err == nil {
		m.Set("taken_at", value.String(t.Format("2006-01-02T15:04:05")))
	}
	if lat, long, err := x.LatLong(); err == nil {
		m.Set("latitude", value.Float(lat))
		m.Set("longitude", value.Float(long))
	}
}

func tagValue(tag *tiff.Tag) (value.Value, bool) {
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return value.Null(), false
		}
		return value.String(strings.TrimSpace(strings.TrimRight(s, "\x00"))), true
	case tiff.IntVal:
		i, err := tag.Int64(0)
		if err != nil {
			return value.Null(), false
		}
		return value.Int(i), true
	case tiff.RatVal:
		num, den, err := tag.Rat2(0)
		if err != nil || den == 0 {
			return value.Null(), false
		}
		return value.Float(float64(num) / float64(den)), true
	case tiff.FloatVal:
		f, err := tag.Float(0)
		if err != nil {
			return value.Null(), false
		}
		return value.Float(f), true
	}
	return value.Null(), false
}
