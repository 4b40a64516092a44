package postgres

import (
	"context"

	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/streak"
)

// streakRepo implements streak.Repository.
type streakRepo struct {
	q Querier
}

const streakColumns = `user_id, current_streak, longest_streak, last_activity_date, last_freeze_date, freeze_tokens, updated_at`

func (r *streakRepo) Find(ctx context.Context, userID shared.UserID) (*streak.State, error) {
	s, err := scanStreak(r.q.QueryRow(ctx,
		`SELECT `+streakColumns+` FROM streaks WHERE user_id = $1`,
		string(userID),
	))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStreakNotFound
		}
		return nil, classify("Streaks.Find", err)
	}
	return s, nil
}

func (r *streakRepo) Save(ctx context.Context, s *streak.State) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO streaks (`+streakColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_activity_date = EXCLUDED.last_activity_date,
			last_freeze_date = EXCLUDED.last_freeze_date,
			freeze_tokens = EXCLUDED.freeze_tokens,
			updated_at = EXCLUDED.updated_at
	`, string(s.UserID), s.CurrentStreak, s.LongestStreak, s.LastActivityDate, s.LastFreezeDate, s.FreezeTokens, s.UpdatedAt)
	return classify("Streaks.Save", err)
}

func (r *streakRepo) Leaderboard(ctx context.Context, limit int) ([]*streak.State, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+streakColumns+`
		FROM streaks
		WHERE current_streak > 0
		ORDER BY current_streak DESC, longest_streak DESC, user_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, classify("Streaks.Leaderboard", err)
	}
	defer rows.Close()

	var out []*streak.State
	for rows.Next() {
		s, err := scanStreak(rows)
		if err != nil {
			return nil, classify("Streaks.Leaderboard", err)
		}
		out = append(out, s)
	}
	return out, classify("Streaks.Leaderboard", rows.Err())
}

func scanStreak(row scanner) (*streak.State, error) {
	var (
		s      streak.State
		userID string
	)
	err := row.Scan(&userID, &s.CurrentStreak, &s.LongestStreak, &s.LastActivityDate, &s.LastFreezeDate, &s.FreezeTokens, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.UserID = shared.UserID(userID)
	return &s, nil
}
