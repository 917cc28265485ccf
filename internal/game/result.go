package game

import (
	"sort"
	"time"
)

// PlayerResult is one row of a match summary
type PlayerResult struct {
	PlayerID   string `json:"playerId"`
	Name       string `json:"name"`
	Team       string `json:"team,omitempty"`
	Score      int    `json:"score"`
	TotalScore int    `json:"totalScore"`
	Alive      bool   `json:"alive"`
	Cause      string `json:"cause,omitempty"`
	Placement  int    `json:"placement"`
	IsBot      bool   `json:"isBot"`
}

// MatchSummary is the terminal record handed to the result sink
type MatchSummary struct {
	RoomID          string         `json:"roomId"`
	MatchID         string         `json:"matchId"`
	Mode            string         `json:"mode"`
	WinnerID        string         `json:"winnerId"`
	WinnerName      string         `json:"winnerName,omitempty"`
	WinnerTeam      string         `json:"winnerTeam,omitempty"`
	PlayerCount     int            `json:"playerCount"`
	DurationSeconds float64        `json:"durationSeconds"`
	Draw            bool           `json:"draw"`
	Reason          string         `json:"reason"`
	EndedAt         time.Time      `json:"endedAt"`
	Results         []PlayerResult `json:"results"`
}

// ResultSink receives match summaries. RecordMatch is called on the room
// goroutine and must not block.
type ResultSink interface {
	RecordMatch(summary MatchSummary)
}

type nopResults struct{}

func (nopResults) RecordMatch(MatchSummary) {}

// buildSummary ranks players by score, alive players first on equal score
func (r *Room) buildSummary(o Outcome) MatchSummary {
	players := r.store.Players()
	rows := make([]PlayerResult, 0, len(players))
	for _, p := range players {
		rows = append(rows, PlayerResult{
			PlayerID:   p.ID,
			Name:       p.Name,
			Team:       p.Team,
			Score:      p.Score,
			TotalScore: p.TotalScore(),
			Alive:      p.Alive,
			Cause:      p.Cause,
			IsBot:      p.IsBot,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Alive && !rows[j].Alive
	})
	for i := range rows {
		rows[i].Placement = i + 1
	}

	return MatchSummary{
		RoomID:          r.ID,
		MatchID:         r.matchID,
		Mode:            r.Mode,
		WinnerID:        o.WinnerID,
		WinnerName:      o.WinnerName,
		WinnerTeam:      o.WinnerTeam,
		PlayerCount:     len(players),
		DurationSeconds: r.clock.Seconds(r.matchTicks),
		Draw:            o.Draw,
		Reason:          o.Reason,
		EndedAt:         time.Now().UTC(),
		Results:         rows,
	}
}
