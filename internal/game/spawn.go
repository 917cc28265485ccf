package game

import (
	"math"
	"math/rand"
)

const spawnInset = 80.0

// SpawnPoint returns the position for the index-th of count players under a layout
func SpawnPoint(arena *Arena, layout SpawnLayout, index, count int, team string, rng *rand.Rand) (float64, float64) {
	switch layout {
	case SpawnCorners:
		return cornerSpawn(arena, index)
	case SpawnCircle:
		return circleSpawn(arena, index, count)
	case SpawnTeams:
		return teamSpawn(arena, index, team)
	default:
		return arena.RandomPoint(rng, DefaultPlayerRadius*2)
	}
}

// cornerSpawn cycles through the four corners, then the edge midpoints
func cornerSpawn(arena *Arena, index int) (float64, float64) {
	w, h := arena.Width, arena.Height
	inset := math.Min(spawnInset, math.Min(w, h)/4)
	points := [][2]float64{
		{inset, inset},
		{w - inset, h - inset},
		{w - inset, inset},
		{inset, h - inset},
		{w / 2, inset},
		{w / 2, h - inset},
		{inset, h / 2},
		{w - inset, h / 2},
	}
	pt := points[index%len(points)]
	return pt[0], pt[1]
}

// circleSpawn spaces players evenly on a ring at 60% of the island radius
func circleSpawn(arena *Arena, index, count int) (float64, float64) {
	if count < 1 {
		count = 1
	}
	cx, cy := arena.Center()
	ring := arena.Extent() * 0.6
	angle := 2 * math.Pi * float64(index) / float64(count)
	return cx + math.Cos(angle)*ring, cy + math.Sin(angle)*ring
}

// teamSpawn stacks red on the left quarter line and blue on the right
func teamSpawn(arena *Arena, index int, team string) (float64, float64) {
	x := arena.Width * 0.25
	if team == TeamBlue {
		x = arena.Width * 0.75
	}
	// 0, +1, -1, +2, -2 ... rows around the center line
	step := (index + 1) / 2
	if index%2 == 0 {
		step = -step
	}
	y := arena.Height/2 + float64(step)*DefaultPlayerRadius*3
	return x, y
}
