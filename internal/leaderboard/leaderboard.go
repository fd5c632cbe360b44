// Package leaderboard derives ranked standings from player scores.
package leaderboard

import (
	"sort"

	"trivia-sync-service/internal/domain"
)

// Rank orders players by score, highest first, and assigns rank by position.
// Equal scores keep their input order, so callers pass players in join order
// to get a deterministic tiebreak. The input slice is not modified.
func Rank(players []domain.Player) []domain.ScoreSnapshot {
	ordered := make([]domain.Player, len(players))
	copy(ordered, players)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	standings := make([]domain.ScoreSnapshot, 0, len(ordered))
	for i, p := range ordered {
		standings = append(standings, domain.ScoreSnapshot{
			PlayerID: p.ID,
			Nickname: p.Nickname,
			Score:    p.Score,
			Rank:     i + 1,
		})
	}
	return standings
}

// RankOf returns the rank of playerID in standings, or 0 if absent.
func RankOf(standings []domain.ScoreSnapshot, playerID string) int {
	for _, s := range standings {
		if s.PlayerID == playerID {
			return s.Rank
		}
	}
	return 0
}
