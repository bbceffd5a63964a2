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
	"strconv"
	"strings"
)

// Path commands and shapes.

type PathOp uint8

const (
	MoveTo PathOp = iota
	LineTo
	QuadTo  // quadratic bezier (cx, cy, x, y)
	CubicTo // cubic bezier (cx1, cy1, cx2, cy2, x, y)
	Close
)

type PathCmd struct {
	Op   PathOp
	Data [6]float32 // enough for cubic; unused slots are zero
}

type Path struct{ Cmds []PathCmd }

func (p *Path) MoveTo(x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: MoveTo, Data: [6]float32{x, y}})
}
func (p *Path) LineTo(x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: LineTo, Data: [6]float32{x, y}})
}
func (p *Path) QuadTo(cx, cy, x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: QuadTo, Data: [6]float32{cx, cy, x, y}})
}
func (p *Path) CubicTo(cx1, cy1, cx2, cy2, x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: CubicTo, Data: [6]float32{cx1, cy1, cx2, cy2, x, y}})
}
func (p *Path) Close() { p.Cmds = append(p.Cmds, PathCmd{Op: Close}) }

func (op PathOp) arity() int {
	switch op {
	case MoveTo, LineTo:
		return 2
	case QuadTo:
		return 4
	case CubicTo:
		return 6
	}
	return 0
}

func (op PathOp) letter() string {
	return [...]string{"M", "L", "Q", "C", "Z"}[op]
}

// Bounds returns an axis-aligned bounding box of the path considering control
// points. Good enough for selection rectangles.
func (p Path) Bounds() Rect {
	var pts []Pt
	for _, c := range p.Cmds {
		for i := 0; i+1 < c.Op.arity(); i += 2 {
			pts = append(pts, Pt{c.Data[i], c.Data[i+1]})
		}
	}
	return BoundsOfPoints(pts)
}

// Transform returns a copy of p with every point mapped through m.
func (p Path) Transform(m Affine2D) Path {
	out := Path{Cmds: make([]PathCmd, len(p.Cmds))}
	for i, c := range p.Cmds {
		out.Cmds[i] = c
		for j := 0; j+1 < c.Op.arity(); j += 2 {
			q := m.Apply(Pt{c.Data[j], c.Data[j+1]})
			out.Cmds[i].Data[j], out.Cmds[i].Data[j+1] = q.X, q.Y
		}
	}
	return out
}

// String renders the path as absolute SVG path data, e.g. "M 0 0 L 200 0".
func (p Path) String() string {
	var b strings.Builder
	for i, c := range p.Cmds {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c.Op.letter())
		for j := 0; j < c.Op.arity(); j++ {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(float64(c.Data[j]), 'f', -1, 32))
		}
	}
	return b.String()
}

// Polyline is a flattened subpath.
type Polyline struct {
	Pts    []Pt
	Closed bool
}

// Flatten approximates curves with steps line segments each and splits the path
// into subpaths at every MoveTo.
func (p Path) Flatten(steps int) []Polyline {
	if steps < 1 {
		steps = 1
	}
	var out []Polyline
	var cur *Polyline
	var pen, start Pt
	begin := func(at Pt) {
		out = append(out, Polyline{Pts: []Pt{at}})
		cur = &out[len(out)-1]
	}
	for _, c := range p.Cmds {
		switch c.Op {
		case MoveTo:
			pen = Pt{c.Data[0], c.Data[1]}
			start = pen
			begin(pen)
		case LineTo:
			if cur == nil {
				begin(pen)
			}
			pen = Pt{c.Data[0], c.Data[1]}
			cur.Pts = append(cur.Pts, pen)
		case QuadTo:
			if cur == nil {
				begin(pen)
			}
			p0, p1, p2 := pen, Pt{c.Data[0], c.Data[1]}, Pt{c.Data[2], c.Data[3]}
			for i := 1; i <= steps; i++ {
				t := float32(i) / float32(steps)
				u := 1 - t
				cur.Pts = append(cur.Pts, Pt{
					X: u*u*p0.X + 2*u*t*p1.X + t*t*p2.X,
					Y: u*u*p0.Y + 2*u*t*p1.Y + t*t*p2.Y,
				})
			}
			pen = p2
		case CubicTo:
			if cur == nil {
				begin(pen)
			}
			p0, p1, p2, p3 := pen, Pt{c.Data[0], c.Data[1]}, Pt{c.Data[2], c.Data[3]}, Pt{c.Data[4], c.Data[5]}
			for i := 1; i <= steps; i++ {
				t := float32(i) / float32(steps)
				u := 1 - t
				cur.Pts = append(cur.Pts, Pt{
					X: u*u*u*p0.X + 3*u*u*t*p1.X + 3*u*t*t*p2.X + t*t*t*p3.X,
					Y: u*u*u*p0.Y + 3*u*u*t*p1.Y + 3*u*t*t*p2.Y + t*t*t*p3.Y,
				})
			}
			pen = p3
		case Close:
			if cur != nil {
				cur.Closed = true
				cur = nil
			}
			pen = start
		}
	}
	return out
}

// ParsePathData parses SVG path data restricted to M, L, H, V, Q, C and Z
// (absolute and relative). Relative commands are resolved, so the result only
// holds absolute MoveTo/LineTo/QuadTo/CubicTo/Close commands.
func ParsePathData(s string) (Path, error) {
	l := pathLexer{s: s}
	var p Path
	var cmd byte
	var pen, start Pt
	for {
		l.skipSep()
		if l.i >= len(l.s) {
			break
		}
		if c := l.s[l.i]; isPathCmd(c) {
			cmd = c
			l.i++
		} else if cmd == 0 {
			return Path{}, fmt.Errorf("path data: expected command at offset %d", l.i)
		}
		rel := cmd >= 'a' && cmd <= 'z'
		abs := func(x, y float32) Pt {
			if rel {
				return Pt{pen.X + x, pen.Y + y}
			}
			return Pt{x, y}
		}
		var n [6]float32
		switch cmd | 0x20 {
		case 'm':
			if err := l.numbers(n[:2]); err != nil {
				return Path{}, err
			}
			pen = abs(n[0], n[1])
			start = pen
			p.MoveTo(pen.X, pen.Y)
			// further pairs are implicit lineto
			if rel {
				cmd = 'l'
			} else {
				cmd = 'L'
			}
		case 'l':
			if err := l.numbers(n[:2]); err != nil {
				return Path{}, err
			}
			pen = abs(n[0], n[1])
			p.LineTo(pen.X, pen.Y)
		case 'h':
			if err := l.numbers(n[:1]); err != nil {
				return Path{}, err
			}
			if rel {
				pen.X += n[0]
			} else {
				pen.X = n[0]
			}
			p.LineTo(pen.X, pen.Y)
		case 'v':
			if err := l.numbers(n[:1]); err != nil {
				return Path{}, err
			}
			if rel {
				pen.Y += n[0]
			} else {
				pen.Y = n[0]
			}
			p.LineTo(pen.X, pen.Y)
		case 'q':
			if err := l.numbers(n[:4]); err != nil {
				return Path{}, err
			}
			c1, end := abs(n[0], n[1]), abs(n[2], n[3])
			p.QuadTo(c1.X, c1.Y, end.X, end.Y)
			pen = end
		case 'c':
			if err := l.numbers(n[:6]); err != nil {
				return Path{}, err
			}
			c1, c2, end := abs(n[0], n[1]), abs(n[2], n[3]), abs(n[4], n[5])
			p.CubicTo(c1.X, c1.Y, c2.X, c2.Y, end.X, end.Y)
			pen = end
		case 'z':
			p.Close()
			pen = start
			cmd = 0
		}
		if len(p.Cmds) == 1 && p.Cmds[0].Op != MoveTo {
			return Path{}, fmt.Errorf("path data: must start with M")
		}
	}
	return p, nil
}

func isPathCmd(c byte) bool {
	switch c | 0x20 {
	case 'm', 'l', 'h', 'v', 'q', 'c', 'z':
		return true
	}
	return false
}

type pathLexer struct {
	s string
	i int
}

func (l *pathLexer) skipSep() {
	for l.i < len(l.s) {
		switch l.s[l.i] {
		case ' ', ',', '\t', '\n', '\r':
			l.i++
		default:
			return
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (l *pathLexer) numbers(dst []float32) error {
	for k := range dst {
		v, err := l.number()
		if err != nil {
			return err
		}
		dst[k] = v
	}
	return nil
}

func (l *pathLexer) number() (float32, error) {
	l.skipSep()
	start := l.i
	if l.i < len(l.s) && (l.s[l.i] == '+' || l.s[l.i] == '-') {
		l.i++
	}
	digits := false
	for l.i < len(l.s) && isDigit(l.s[l.i]) {
		l.i++
		digits = true
	}
	if l.i < len(l.s) && l.s[l.i] == '.' {
		l.i++
		for l.i < len(l.s) && isDigit(l.s[l.i]) {
			l.i++
			digits = true
		}
	}
	if !digits {
		return 0, fmt.Errorf("path data: expected number at offset %d", start)
	}
	if l.i < len(l.s) && (l.s[l.i] == 'e' || l.s[l.i] == 'E') {
		j := l.i + 1
		if j < len(l.s) && (l.s[j] == '+' || l.s[j] == '-') {
			j++
		}
		if j < len(l.s) && isDigit(l.s[j]) {
			for j < len(l.s) && isDigit(l.s[j]) {
				j++
			}
			l.i = j
		}
	}
	v, err := strconv.ParseFloat(l.s[start:l.i], 32)
	if err != nil {
		return 0, fmt.Errorf("path data: %w", err)
	}
	return float32(v), nil
}
