/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"goslides/internal/vector"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

// DocumentVersion is written into every serialized scene.
const DocumentVersion = 1

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// DeserializationError reports slide content that cannot be turned into a Scene.
type DeserializationError struct {
	Reason string
	Err    error
}

func (e *DeserializationError) Error() string {
	if e.Err != nil {
		return "deserialize scene: " + e.Reason + ": " + e.Err.Error()
	}
	return "deserialize scene: " + e.Reason
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// IsDeserializationError reports whether err wraps a *DeserializationError.
func IsDeserializationError(err error) bool {
	var de *DeserializationError
	return errors.As(err, &de)
}

type document struct {
	Version    int               `json:"version"`
	Width      float32           `json:"width"`
	Height     float32           `json:"height"`
	Background string            `json:"background"`
	Objects    []json.RawMessage `json:"objects"`
}

// common holds the fields shared by every drawable record.
type common struct {
	Type           Kind    `json:"type"`
	ID             string  `json:"id"`
	Left           float32 `json:"left"`
	Top            float32 `json:"top"`
	ScaleX         float32 `json:"scaleX"`
	ScaleY         float32 `json:"scaleY"`
	Angle          float32 `json:"angle"`
	Fill           string  `json:"fill"`
	Stroke         string  `json:"stroke"`
	StrokeWidth    float32 `json:"strokeWidth"`
	Opacity        float32 `json:"opacity"`
	StrokeLineCap  string  `json:"strokeLineCap"`
	StrokeLineJoin string  `json:"strokeLineJoin"`
}

type textRecord struct {
	common
	Text       string  `json:"text"`
	FontFamily string  `json:"fontFamily"`
	FontSize   float32 `json:"fontSize"`
	FontWeight string  `json:"fontWeight"`
	FontStyle  string  `json:"fontStyle"`
	Underline  bool    `json:"underline"`
}

type rectRecord struct {
	common
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

type circleRecord struct {
	common
	Radius float32 `json:"radius"`
}

type pathRecord struct {
	common
	Path string `json:"path"`
}

type point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

type strokeRecord struct {
	common
	Points []point `json:"points"`
}

type imageRecord struct {
	common
	Src    string  `json:"src"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// Serialize encodes s as a self-describing JSON document.
func Serialize(s Scene) ([]byte, error) {
	doc := struct {
		Version    int     `json:"version"`
		Width      float32 `json:"width"`
		Height     float32 `json:"height"`
		Background string  `json:"background"`
		Objects    []any   `json:"objects"`
	}{
		Version:    DocumentVersion,
		Width:      s.Width,
		Height:     s.Height,
		Background: s.Background.Hex(),
		Objects:    make([]any, 0, len(s.Objects)),
	}
	for _, d := range s.Objects {
		rec, err := encodeDrawable(d)
		if err != nil {
			return nil, err
		}
		doc.Objects = append(doc.Objects, rec)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serialize scene: %w", err)
	}
	return b, nil
}

func encodeCommon(d Drawable) common {
	return common{
		Type:           d.Kind(),
		ID:             d.ID,
		Left:           d.Left,
		Top:            d.Top,
		ScaleX:         d.ScaleX,
		ScaleY:         d.ScaleY,
		Angle:          d.Angle,
		Fill:           d.Fill.Hex(),
		Stroke:         d.Stroke.Hex(),
		StrokeWidth:    d.StrokeWidth,
		Opacity:        d.Opacity,
		StrokeLineCap:  d.LineCap.String(),
		StrokeLineJoin: d.LineJoin.String(),
	}
}

func encodeDrawable(d Drawable) (any, error) {
	c := encodeCommon(d)
	switch s := d.Shape.(type) {
	case Text:
		r := textRecord{common: c, Text: s.Value, FontFamily: s.FontFamily, FontSize: s.FontSize,
			FontWeight: "normal", FontStyle: "normal", Underline: s.Underline}
		if s.Bold {
			r.FontWeight = "bold"
		}
		if s.Italic {
			r.FontStyle = "italic"
		}
		return r, nil
	case Rect:
		return rectRecord{common: c, Width: s.Width, Height: s.Height}, nil
	case Circle:
		return circleRecord{common: c, Radius: s.Radius}, nil
	case Path:
		return pathRecord{common: c, Path: s.Data.String()}, nil
	case Freehand:
		var pts []point
		if s.Points != nil {
			pts = make([]point, len(s.Points))
			for i, p := range s.Points {
				pts[i] = point{X: p.X, Y: p.Y}
			}
		}
		return strokeRecord{common: c, Points: pts}, nil
	case Image:
		return imageRecord{common: c, Src: s.Src, Width: s.Width, Height: s.Height}, nil
	}
	return nil, fmt.Errorf("serialize scene: drawable %s has unknown kind %q", d.ID, d.Kind())
}

// Deserialize decodes a scene document. Empty or null content is an empty
// canvas. Anything that does not describe a valid Scene is a *DeserializationError.
func Deserialize(data []byte) (Scene, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return New(), nil
	}
	sch, err := compiledSchema()
	if err != nil {
		return Scene{}, fmt.Errorf("compile scene schema: %w", err)
	}
	res, err := sch.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Scene{}, &DeserializationError{Reason: "malformed JSON", Err: err}
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Scene{}, &DeserializationError{Reason: "schema violation: " + strings.Join(msgs, "; ")}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Scene{}, &DeserializationError{Reason: "decode document", Err: err}
	}
	if doc.Version > DocumentVersion {
		return Scene{}, &DeserializationError{Reason: fmt.Sprintf("unsupported document version %d", doc.Version)}
	}
	s := New()
	if doc.Width > 0 {
		s.Width = doc.Width
	}
	if doc.Height > 0 {
		s.Height = doc.Height
	}
	if s.Background, err = vector.ParseHex(doc.Background); err != nil {
		return Scene{}, &DeserializationError{Reason: "background", Err: err}
	}
	for i, raw := range doc.Objects {
		d, err := decodeDrawable(raw)
		if err != nil {
			return Scene{}, &DeserializationError{Reason: fmt.Sprintf("object %d", i), Err: err}
		}
		if err := s.Add(d); err != nil {
			return Scene{}, &DeserializationError{Reason: fmt.Sprintf("object %d", i), Err: err}
		}
	}
	return s, nil
}

// decodeDefaults seeds every record so fields absent from a document keep
// their neutral values.
var decodeDefaults = common{ScaleX: 1, ScaleY: 1, Opacity: 1}

func decodeCommon(c common) (Drawable, error) {
	d := Drawable{
		ID:       c.ID,
		Geometry: Geometry{Left: c.Left, Top: c.Top, ScaleX: c.ScaleX, ScaleY: c.ScaleY, Angle: c.Angle},
		Style:    Style{StrokeWidth: c.StrokeWidth, Opacity: c.Opacity},
	}
	var err error
	if d.Fill, err = vector.ParseHex(c.Fill); err != nil {
		return d, err
	}
	if d.Stroke, err = vector.ParseHex(c.Stroke); err != nil {
		return d, err
	}
	if d.LineCap, err = vector.ParseLineCap(c.StrokeLineCap); err != nil {
		return d, err
	}
	if d.LineJoin, err = vector.ParseLineJoin(c.StrokeLineJoin); err != nil {
		return d, err
	}
	return d, nil
}

func decodeDrawable(raw json.RawMessage) (Drawable, error) {
	var tag struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return Drawable{}, err
	}
	switch tag.Type {
	case KindText:
		r := textRecord{common: decodeDefaults}
		if err := json.Unmarshal(raw, &r); err != nil {
			return Drawable{}, err
		}
		d, err := decodeCommon(r.common)
		d.Shape = Text{Value: r.Text, FontFamily: r.FontFamily, FontSize: r.FontSize,
			Bold: r.FontWeight == "bold", Italic: r.FontStyle == "italic", Underline: r.Underline}
		return d, err
	case KindRect:
		r := rectRecord{common: decodeDefaults}
		if err := json.Unmarshal(raw, &r); err != nil {
			return Drawable{}, err
		}
		d, err := decodeCommon(r.common)
		d.Shape = Rect{Width: r.Width, Height: r.Height}
		return d, err
	case KindCircle:
		r := circleRecord{common: decodeDefaults}
		if err := json.Unmarshal(raw, &r); err != nil {
			return Drawable{}, err
		}
		d, err := decodeCommon(r.common)
		d.Shape = Circle{Radius: r.Radius}
		return d, err
	case KindPath:
		r := pathRecord{common: decodeDefaults}
		if err := json.Unmarshal(raw, &r); err != nil {
			return Drawable{}, err
		}
		p, err := vector.ParsePathData(r.Path)
		if err != nil {
			return Drawable{}, err
		}
		d, err := decodeCommon(r.common)
		d.Shape = Path{Data: p}
		return d, err
	case KindStroke:
		r := strokeRecord{common: decodeDefaults}
		if err := json.Unmarshal(raw, &r); err != nil {
			return Drawable{}, err
		}
		var pts []vector.Pt
		if r.Points != nil {
			pts = make([]vector.Pt, len(r.Points))
			for i, p := range r.Points {
				pts[i] = vector.Pt{X: p.X, Y: p.Y}
			}
		}
		d, err := decodeCommon(r.common)
		d.Shape = Freehand{Points: pts}
		return d, err
	case KindImage:
		r := imageRecord{common: decodeDefaults}
		if err := json.Unmarshal(raw, &r); err != nil {
			return Drawable{}, err
		}
		d, err := decodeCommon(r.common)
		d.Shape = Image{Src: r.Src, Width: r.Width, Height: r.Height}
		return d, err
	}
	return Drawable{}, fmt.Errorf("unknown drawable type %q", tag.Type)
}
