package game

import "math"

// Shape tests used by the collision resolver. All checks are O(1); rooms hold
// few enough bodies that no broad-phase index is needed.

// circlesOverlap reports whether two circles intersect and returns the center distance.
func circlesOverlap(ax, ay, ar, bx, by, br float64) (bool, float64) {
	dx := bx - ax
	dy := by - ay
	dist := math.Sqrt(dx*dx + dy*dy)
	return dist < ar+br, dist
}

// circleRectOverlap tests a circle against an axis-aligned box given by its center and size.
func circleRectOverlap(cx, cy, r, rx, ry, w, h float64) bool {
	nearX := clamp(cx, rx-w/2, rx+w/2)
	nearY := clamp(cy, ry-h/2, ry+h/2)
	dx := cx - nearX
	dy := cy - nearY
	return dx*dx+dy*dy < r*r
}

// pointInRect reports whether a point lies inside a box given by its center and size.
func pointInRect(px, py, rx, ry, w, h float64) bool {
	return px >= rx-w/2 && px <= rx+w/2 && py >= ry-h/2 && py <= ry+h/2
}

// segmentDistance returns the distance from point p to the segment a-b.
func segmentDistance(px, py, ax, ay, bx, by float64) float64 {
	abx := bx - ax
	aby := by - ay
	lenSq := abx*abx + aby*aby
	if lenSq == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := clamp(((px-ax)*abx+(py-ay)*aby)/lenSq, 0, 1)
	return math.Hypot(px-(ax+t*abx), py-(ay+t*aby))
}

// normalizeAngle normalizes an angle to the range [-π, π].
func normalizeAngle(angle float64) float64 {
	const twoPi = 2 * math.Pi
	angle = math.Mod(angle, twoPi)
	if angle < 0 {
		angle += twoPi
	}
	if angle > math.Pi {
		angle -= twoPi
	}
	return angle
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeVector scales (x, y) down to unit length when its magnitude exceeds 1.
// Non-finite input yields ok=false.
func normalizeVector(x, y float64) (float64, float64, bool) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, false
	}
	mag := math.Hypot(x, y)
	if mag > 1 {
		return x / mag, y / mag, true
	}
	return x, y, true
}
