package game

import "math"

const ModeHarvest = "harvest"

// Grid is the depletable tile field. Cells holds a small integer per cell:
// CellValue when full, 0 when empty. Only proximity checks mutate it.
type Grid struct {
	Cols    int     `json:"cols"`
	Rows    int     `json:"rows"`
	Cells   []int   `json:"cells"`
	OriginX float64 `json:"originX"`
	OriginY float64 `json:"originY"`
	CellW   float64 `json:"cellW"`
	CellH   float64 `json:"cellH"`
}

// NewGrid lays a cols x rows grid over the middle 70% of a rectangular arena
func NewGrid(arena *Arena, cols, rows, value int) *Grid {
	g := &Grid{
		Cols:    cols,
		Rows:    rows,
		Cells:   make([]int, cols*rows),
		OriginX: arena.Width * 0.15,
		OriginY: arena.Height * 0.15,
		CellW:   arena.Width * 0.7 / float64(cols),
		CellH:   arena.Height * 0.7 / float64(rows),
	}
	for i := range g.Cells {
		g.Cells[i] = value
	}
	return g
}

// CellCenter returns the world position of cell i
func (g *Grid) CellCenter(i int) (float64, float64) {
	col := i % g.Cols
	row := i / g.Cols
	return g.OriginX + (float64(col)+0.5)*g.CellW, g.OriginY + (float64(row)+0.5)*g.CellH
}

// Remaining counts non-empty cells
func (g *Grid) Remaining() int {
	n := 0
	for _, v := range g.Cells {
		if v > 0 {
			n++
		}
	}
	return n
}

// Nearest returns the closest non-empty cell within radius of (x, y), or -1
func (g *Grid) Nearest(x, y, radius float64) int {
	best := -1
	bestDist := math.Inf(1)
	for i, v := range g.Cells {
		if v <= 0 {
			continue
		}
		cx, cy := g.CellCenter(i)
		if d := math.Hypot(cx-x, cy-y); d <= radius && d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// HarvestConfig tunes the tile-collection sprint
type HarvestConfig struct {
	MinPlayers      int     `yaml:"minPlayers"`
	MaxPlayers      int     `yaml:"maxPlayers"`
	Width           float64 `yaml:"width"`
	Height          float64 `yaml:"height"`
	MaxSpeed        float64 `yaml:"maxSpeed"`
	Cols            int     `yaml:"cols"`
	Rows            int     `yaml:"rows"`
	CellValue       int     `yaml:"cellValue"`
	Points          int     `yaml:"points"`
	HarvestRadius   float64 `yaml:"harvestRadius"`
	HarvestCooldown float64 `yaml:"harvestCooldown"`
	BoostSeconds    float64 `yaml:"boostSeconds"`
	MatchSeconds    float64 `yaml:"matchSeconds"`
}

// DefaultHarvest returns the default sprint tuning
func DefaultHarvest() HarvestConfig {
	return HarvestConfig{
		MinPlayers:      2,
		MaxPlayers:      8,
		Width:           960,
		Height:          640,
		MaxSpeed:        280,
		Cols:            4,
		Rows:            2,
		CellValue:       2,
		Points:          10,
		HarvestRadius:   50,
		HarvestCooldown: 0.5,
		BoostSeconds:    5,
		MatchSeconds:    90,
	}
}

// Harvest: players strip a grid of cells; whoever empties a cell scores
type Harvest struct {
	cfg HarvestConfig
}

func NewHarvest(cfg HarvestConfig) *Harvest {
	return &Harvest{cfg: cfg}
}

func (h *Harvest) Name() string { return ModeHarvest }

func (h *Harvest) Settings() ModeSettings {
	return ModeSettings{
		MinPlayers:       h.cfg.MinPlayers,
		MaxPlayers:       h.cfg.MaxPlayers,
		ReadyGated:       true,
		Arena:            RectArena(h.cfg.Width, h.cfg.Height, h.cfg.Width/2, h.cfg.Height/2),
		Spawn:            SpawnCorners,
		MaxSpeed:         h.cfg.MaxSpeed,
		Timer:            TimerDown,
		MatchSeconds:     h.cfg.MatchSeconds,
		CarryScore:       true,
		AcceptsMutations: true,
	}
}

func (h *Harvest) Setup(r *Room) {
	r.store.SetGrid(NewGrid(&r.arena, h.cfg.Cols, h.cfg.Rows, h.cfg.CellValue))
}

func (h *Harvest) OnTick(r *Room) {
	grid := r.store.Grid()
	if grid == nil {
		return
	}
	cooldown := r.clock.Ticks(h.cfg.HarvestCooldown)
	for _, p := range r.store.Players() {
		if !p.Alive || p.HarvestCooldown > 0 {
			continue
		}
		i := grid.Nearest(p.X, p.Y, h.cfg.HarvestRadius)
		if i < 0 {
			continue
		}
		grid.Cells[i]--
		p.HarvestCooldown = cooldown
		if grid.Cells[i] == 0 {
			p.Score += h.cfg.Points
			p.BoostTicks = r.clock.Ticks(h.cfg.BoostSeconds)
			r.emit(EventCellDepleted, p.ID, CellDepletedPayload{Cell: i, PlayerID: p.ID, Points: h.cfg.Points})
		}
	}
}

func (h *Harvest) CheckWin(r *Room) (Outcome, bool) {
	grid := r.store.Grid()
	if grid == nil || grid.Remaining() > 0 {
		return Outcome{}, false
	}
	return scoreOutcome(r.store.Players(), ReasonAllCleared), true
}

func (h *Harvest) Resolve(r *Room, reason string) Outcome {
	return scoreOutcome(r.store.Players(), reason)
}

func (h *Harvest) Reset(r *Room) {}

// DriveBot heads for the nearest cell that still has something left
func (h *Harvest) DriveBot(r *Room, p *Player) {
	grid := r.store.Grid()
	if grid == nil {
		p.wander(&r.arena, r.rng)
		return
	}
	i := grid.Nearest(p.X, p.Y, math.Inf(1))
	if i < 0 {
		p.wander(&r.arena, r.rng)
		return
	}
	p.steerTowards(grid.CellCenter(i))
}

type harvestState struct {
	CellsLeft int `json:"cellsLeft"`
}

func (h *Harvest) ModeState(r *Room) any {
	grid := r.store.Grid()
	if grid == nil {
		return nil
	}
	return harvestState{CellsLeft: grid.Remaining()}
}
