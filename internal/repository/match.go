package repository

import (
	"context"
	"fmt"
	"time"
)

// MatchRecord is one finished match as persisted.
type MatchRecord struct {
	RoomID     string
	Seed       int64
	WinnerID   string
	LoserID    string
	EndReason  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// PlayerStats aggregates a player's match history.
type PlayerStats struct {
	PlayerID string
	Wins     int
	Losses   int
}

// MatchRepository persists finished matches. Rooms invoke it once per
// match through the narrow recorder interface they define.
type MatchRepository struct {
	db *DB
}

// NewMatchRepository creates a match repository over the shared pool.
func NewMatchRepository(db *DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// RecordMatch inserts one finished match.
func (r *MatchRepository) RecordMatch(ctx context.Context, m MatchRecord) error {
	const q = `
INSERT INTO matches (room_id, seed, winner_id, loser_id, end_reason, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.pool.Exec(ctx, q,
		m.RoomID, m.Seed, m.WinnerID, m.LoserID, m.EndReason, m.StartedAt, m.FinishedAt)
	if err != nil {
		return fmt.Errorf("record match: %w", err)
	}
	return nil
}

// StatsFor returns a player's win/loss aggregate.
func (r *MatchRepository) StatsFor(ctx context.Context, playerID string) (PlayerStats, error) {
	const q = `
SELECT
    COUNT(*) FILTER (WHERE winner_id = $1),
    COUNT(*) FILTER (WHERE loser_id = $1)
FROM matches
WHERE winner_id = $1 OR loser_id = $1`

	stats := PlayerStats{PlayerID: playerID}
	if err := r.db.pool.QueryRow(ctx, q, playerID).Scan(&stats.Wins, &stats.Losses); err != nil {
		return PlayerStats{}, fmt.Errorf("player stats: %w", err)
	}
	return stats, nil
}

// RecentMatches returns a player's latest matches, newest first.
func (r *MatchRepository) RecentMatches(ctx context.Context, playerID string, limit int) ([]MatchRecord, error) {
	const q = `
SELECT room_id, seed, winner_id, loser_id, end_reason, started_at, finished_at
FROM matches
WHERE winner_id = $1 OR loser_id = $1
ORDER BY finished_at DESC
LIMIT $2`

	rows, err := r.db.pool.Query(ctx, q, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent matches: %w", err)
	}
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		var m MatchRecord
		if err := rows.Scan(&m.RoomID, &m.Seed, &m.WinnerID, &m.LoserID, &m.EndReason, &m.StartedAt, &m.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
