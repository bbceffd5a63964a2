/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Hit-testing of transformed primitives. Each helper takes the shape in its
// local coordinates plus the local-to-world transform and a world point.

// HitRect reports whether p lies inside r after r is mapped by xf.
func HitRect(r Rect, xf Affine2D, p Pt) bool {
	inv, ok := xf.Invert()
	if !ok {
		return false
	}
	return r.Contains(inv.Apply(p))
}

// HitEllipse reports whether p lies inside the ellipse inscribed in r.
func HitEllipse(r Rect, xf Affine2D, p Pt) bool {
	inv, ok := xf.Invert()
	if !ok {
		return false
	}
	q := inv.Apply(p)
	rx, ry := r.W/2, r.H/2
	if rx == 0 || ry == 0 {
		return false
	}
	c := r.Center()
	dx := (q.X - c.X) / rx
	dy := (q.Y - c.Y) / ry
	return dx*dx+dy*dy <= 1
}

// HitPolyline reports whether p is within tol world units of the polyline.
func HitPolyline(pts []Pt, xf Affine2D, p Pt, tol float32) bool {
	if len(pts) == 0 {
		return false
	}
	prev := xf.Apply(pts[0])
	if len(pts) == 1 {
		return prev.Dist(p) <= tol
	}
	for _, lp := range pts[1:] {
		cur := xf.Apply(lp)
		if distToSegment(p, prev, cur) <= tol {
			return true
		}
		prev = cur
	}
	return false
}

func distToSegment(p, a, b Pt) float32 {
	ab := b.Sub(a)
	l2 := ab.X*ab.X + ab.Y*ab.Y
	if l2 == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*ab.X + (p.Y-a.Y)*ab.Y) / l2
	t = max(0, min(1, t))
	return p.Dist(Pt{a.X + t*ab.X, a.Y + t*ab.Y})
}
