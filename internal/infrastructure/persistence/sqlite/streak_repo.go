package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/streak"
)

type streakRow struct {
	UserID           string       `db:"user_id"`
	CurrentStreak    int          `db:"current_streak"`
	LongestStreak    int          `db:"longest_streak"`
	LastActivityDate sql.NullTime `db:"last_activity_date"`
	LastFreezeDate   sql.NullTime `db:"last_freeze_date"`
	FreezeTokens     int          `db:"freeze_tokens"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (r streakRow) toDomain() *streak.State {
	return &streak.State{
		UserID:           shared.UserID(r.UserID),
		CurrentStreak:    r.CurrentStreak,
		LongestStreak:    r.LongestStreak,
		LastActivityDate: fromNullTime(r.LastActivityDate),
		LastFreezeDate:   fromNullTime(r.LastFreezeDate),
		FreezeTokens:     r.FreezeTokens,
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

// streakRepo implements streak.Repository.
type streakRepo struct {
	q Querier
}

const streakSelect = `SELECT user_id, current_streak, longest_streak, last_activity_date, last_freeze_date, freeze_tokens, updated_at FROM streaks`

func (r *streakRepo) Find(ctx context.Context, userID shared.UserID) (*streak.State, error) {
	var row streakRow
	if err := r.q.GetContext(ctx, &row, streakSelect+` WHERE user_id = ?`, string(userID)); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStreakNotFound
		}
		return nil, classify("Streaks.Find", err)
	}
	return row.toDomain(), nil
}

func (r *streakRepo) Save(ctx context.Context, s *streak.State) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO streaks (user_id, current_streak, longest_streak, last_activity_date, last_freeze_date, freeze_tokens, updated_at)
		VALUES (`+placeholders(7)+`)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_activity_date = excluded.last_activity_date,
			last_freeze_date = excluded.last_freeze_date,
			freeze_tokens = excluded.freeze_tokens,
			updated_at = excluded.updated_at
	`, string(s.UserID), s.CurrentStreak, s.LongestStreak,
		toNullTime(s.LastActivityDate), toNullTime(s.LastFreezeDate), s.FreezeTokens, s.UpdatedAt.UTC())
	return classify("Streaks.Save", err)
}

func (r *streakRepo) Leaderboard(ctx context.Context, limit int) ([]*streak.State, error) {
	var rows []streakRow
	err := r.q.SelectContext(ctx, &rows, streakSelect+`
		WHERE current_streak > 0
		ORDER BY current_streak DESC, longest_streak DESC, user_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, classify("Streaks.Leaderboard", err)
	}

	out := make([]*streak.State, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
