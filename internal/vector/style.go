/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Color is a straight-alpha RGBA color.
type Color struct{ R, G, B, A uint8 }

var (
	Black       = Color{0, 0, 0, 255}
	White       = Color{255, 255, 255, 255}
	Transparent = Color{0, 0, 0, 0}
)

// ParseHex accepts "", "#rgb", "#rrggbb" and "#rrggbbaa". The empty string means no paint.
func ParseHex(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Transparent, nil
	}
	if s[0] != '#' {
		return Color{}, fmt.Errorf("color %q: missing leading '#'", s)
	}
	h := s[1:]
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 && len(h) != 8 {
		return Color{}, fmt.Errorf("color %q: want 3, 6 or 8 hex digits", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	if len(h) == 6 {
		return Color{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, nil
	}
	return Color{uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)}, nil
}

// MustHex is ParseHex for constants.
func MustHex(s string) Color {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex is the inverse of ParseHex: "" for the zero color, #rrggbb when opaque, #rrggbbaa otherwise.
func (c Color) Hex() string {
	switch {
	case c == Transparent:
		return ""
	case c.A == 255:
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	default:
		return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	}
}

// None reports whether painting with c has no visible effect.
func (c Color) None() bool { return c.A == 0 }

// NRGBA returns c with its alpha multiplied by opacity (clamped to 0..1).
func (c Color) NRGBA(opacity float32) color.NRGBA {
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(float32(c.A)*opacity + 0.5)}
}

type LineCap uint8

const (
	CapButt LineCap = iota
	CapRound
	CapSquare
)

func (c LineCap) String() string {
	switch c {
	case CapRound:
		return "round"
	case CapSquare:
		return "square"
	default:
		return "butt"
	}
}

// ParseLineCap maps "", "butt", "round", "square" to a LineCap.
func ParseLineCap(s string) (LineCap, error) {
	switch s {
	case "", "butt":
		return CapButt, nil
	case "round":
		return CapRound, nil
	case "square":
		return CapSquare, nil
	}
	return CapButt, fmt.Errorf("unknown line cap %q", s)
}

type LineJoin uint8

const (
	JoinMiter LineJoin = iota
	JoinRound
	JoinBevel
)

func (j LineJoin) String() string {
	switch j {
	case JoinRound:
		return "round"
	case JoinBevel:
		return "bevel"
	default:
		return "miter"
	}
}

// ParseLineJoin maps "", "miter", "round", "bevel" to a LineJoin.
func ParseLineJoin(s string) (LineJoin, error) {
	switch s {
	case "", "miter":
		return JoinMiter, nil
	case "round":
		return JoinRound, nil
	case "bevel":
		return JoinBevel, nil
	}
	return JoinMiter, fmt.Errorf("unknown line join %q", s)
}
