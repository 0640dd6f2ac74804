package auction

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cricketauction/auctiond/internal/room"
)

// ComputeRankings scores every member team of a completed room and
// returns one ranking record per team, ordered by rank. It is a pure
// function of the room, the player catalog and the final sale states.
//
// Scoring: batting sums runs*0.1 + average*10 over batting-eligible
// players, bowling sums wickets*20 + economy*5 over bowling-eligible
// players, fielding sums catches*10 + stumpings*15 over all players,
// and balance is a flat 100 when the squad has at least 3 batsmen,
// 3 bowlers and 1 all-rounder. Each part is rounded to the nearest
// integer where it is computed. Ties keep join order, so the team that
// joined first ranks ahead; ranks are a contiguous 1..N permutation.
func ComputeRankings(r *room.Room, catalog map[uuid.UUID]room.Player, states []room.PlayerState, now time.Time) []room.Ranking {
	byTeam := make(map[uuid.UUID][]room.PlayerState)
	for _, st := range states {
		if !st.Sold || st.SoldTo == nil {
			continue
		}
		byTeam[*st.SoldTo] = append(byTeam[*st.SoldTo], st)
	}

	rankings := make([]room.Ranking, 0, len(r.Teams))
	for _, team := range r.Teams {
		rk := room.Ranking{
			RoomID:          r.ID,
			TeamID:          team.TeamID,
			RemainingBudget: team.RemainingBudget,
			CreatedAt:       now,
		}

		var batting, bowling, fielding float64
		for _, st := range byTeam[team.TeamID] {
			p, ok := catalog[st.PlayerID]
			if !ok {
				continue
			}
			price := int64(0)
			if st.SoldPrice != nil {
				price = *st.SoldPrice
			}
			rk.TotalSpent += price
			rk.Acquisitions = append(rk.Acquisitions, room.Acquisition{
				PlayerID:      p.ID,
				PurchasePrice: price,
				Role:          p.Role,
				Stats:         p.Stats,
			})

			switch p.Role {
			case room.RoleBatsman:
				rk.Composition.Batsmen++
			case room.RoleBowler:
				rk.Composition.Bowlers++
			case room.RoleAllRounder:
				rk.Composition.AllRounders++
			case room.RoleWicketKeeper:
				rk.Composition.WicketKeepers++
			}

			if p.Role.BattingEligible() {
				batting += float64(p.Stats.Runs)*0.1 + p.Stats.Average*10
			}
			if p.Role.BowlingEligible() {
				bowling += float64(p.Stats.Wickets)*20 + p.Stats.Economy*5
			}
			fielding += float64(p.Stats.Catches)*10 + float64(p.Stats.Stumpings)*15
		}

		rk.Score.Batting = int(math.Round(batting))
		rk.Score.Bowling = int(math.Round(bowling))
		rk.Score.Fielding = int(math.Round(fielding))
		if rk.Composition.Batsmen >= 3 && rk.Composition.Bowlers >= 3 && rk.Composition.AllRounders >= 1 {
			rk.Score.Balance = 100
		}
		rk.Score.Total = rk.Score.Batting + rk.Score.Bowling + rk.Score.Fielding + rk.Score.Balance

		rankings = append(rankings, rk)
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].Score.Total > rankings[j].Score.Total
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings
}
