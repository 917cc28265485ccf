package game

import "math"

// resolveCollisions handles entity-entity and entity-ball contacts for one tick.
// Entity-hazard contacts are handled by the hazard engine.
func (r *Room) resolveCollisions(frozen bool) {
	players := r.store.Players()
	hook, hasHook := r.rules.(ContactHandler)
	reach := r.cfg.Physics.ContactReach

	for i := 0; i < len(players); i++ {
		a := players[i]
		if !a.Alive {
			continue
		}
		for j := i + 1; j < len(players); j++ {
			b := players[j]
			if !b.Alive {
				continue
			}
			dist := pushApart(a, b)
			if hasHook && !frozen && dist <= a.Radius+b.Radius+reach {
				hook.OnContact(r, a, b, dist)
			}
		}
	}

	// Push-apart can nudge bodies past a wall
	for _, p := range players {
		if p.Alive {
			p.X, p.Y, p.VX, p.VY = r.arena.Confine(p.X, p.Y, p.VX, p.VY, p.Radius)
		}
	}

	if ball := r.store.Ball(); ball != nil {
		for _, p := range players {
			if p.Alive {
				deflectBall(p, ball, r.cfg.Physics)
			}
		}
	}
}

// pushApart separates two overlapping players, each moving half the overlap along
// the contact normal. Returns the center distance before separation.
func pushApart(a, b *Player) float64 {
	overlap, dist := circlesOverlap(a.X, a.Y, a.Radius, b.X, b.Y, b.Radius)
	if !overlap {
		return dist
	}

	nx, ny := 1.0, 0.0
	if dist > 0 {
		nx = (b.X - a.X) / dist
		ny = (b.Y - a.Y) / dist
	}
	push := (a.Radius + b.Radius - dist) / 2
	a.X -= nx * push
	a.Y -= ny * push
	b.X += nx * push
	b.Y += ny * push

	// Cancel the approaching part of the relative velocity
	rel := (b.VX-a.VX)*nx + (b.VY-a.VY)*ny
	if rel < 0 {
		a.VX += nx * rel / 2
		a.VY += ny * rel / 2
		b.VX -= nx * rel / 2
		b.VY -= ny * rel / 2
	}
	return dist
}

// deflectBall bounces the ball off a player. The impulse comes from the player's
// velocity along the contact normal, with a floor so a resting player never
// absorbs the ball.
func deflectBall(p *Player, b *Ball, cfg PhysicsConfig) bool {
	overlap, dist := circlesOverlap(p.X, p.Y, p.Radius, b.X, b.Y, b.Radius)
	if !overlap {
		return false
	}

	nx, ny := 0.0, -1.0
	if dist > 0 {
		nx = (b.X - p.X) / dist
		ny = (b.Y - p.Y) / dist
	}
	minDist := p.Radius + b.Radius
	b.X = p.X + nx*minDist
	b.Y = p.Y + ny*minDist

	playerNormal := p.VX*nx + p.VY*ny
	ballNormal := b.VX*nx + b.VY*ny
	if ballNormal < 0 {
		// Drop the component heading into the player
		b.VX -= ballNormal * nx
		b.VY -= ballNormal * ny
	}

	impulse := math.Max((playerNormal-math.Min(ballNormal, 0))*cfg.KickFactor, cfg.MinImpulse)
	b.VX += nx * impulse
	b.VY += ny * impulse
	return true
}
