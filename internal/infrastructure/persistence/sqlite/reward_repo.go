package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
)

type rewardEventRow struct {
	ID          uuid.UUID `db:"id"`
	UserID      string    `db:"user_id"`
	Amount      int64     `db:"amount"`
	Source      string    `db:"source"`
	SourceID    string    `db:"source_id"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r rewardEventRow) toDomain() *reward.Event {
	return &reward.Event{
		ID:          r.ID,
		UserID:      shared.UserID(r.UserID),
		Amount:      r.Amount,
		Source:      reward.Source(r.Source),
		SourceID:    r.SourceID,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type snapshotRow struct {
	UserID    string    `db:"user_id"`
	TotalXP   int64     `db:"total_xp"`
	Level     int       `db:"level"`
	Version   int64     `db:"version"`
	UpdatedAt time.Time `db:"updated_at"`
}

// rewardRepo implements reward.Repository.
type rewardRepo struct {
	q Querier
}

func (r *rewardRepo) Append(ctx context.Context, e *reward.Event) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO reward_events (id, user_id, amount, source, source_id, description, created_at)
		VALUES (`+placeholders(7)+`)
	`, e.ID, string(e.UserID), e.Amount, string(e.Source), e.SourceID, e.Description, e.CreatedAt.UTC())
	return classify("Rewards.Append", err)
}

func (r *rewardRepo) SumForUser(ctx context.Context, userID shared.UserID) (int64, error) {
	var total int64
	err := r.q.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(amount), 0) FROM reward_events WHERE user_id = ?`, string(userID))
	if err != nil {
		return 0, classify("Rewards.SumForUser", err)
	}
	return total, nil
}

func (r *rewardRepo) SumBySource(ctx context.Context, userID shared.UserID) (map[reward.Source]int64, error) {
	var rows []struct {
		Source string `db:"source"`
		Total  int64  `db:"total"`
	}
	err := r.q.SelectContext(ctx, &rows, `
		SELECT source, SUM(amount) AS total
		FROM reward_events
		WHERE user_id = ?
		GROUP BY source
	`, string(userID))
	if err != nil {
		return nil, classify("Rewards.SumBySource", err)
	}

	out := make(map[reward.Source]int64, len(rows))
	for _, row := range rows {
		out[reward.Source(row.Source)] = row.Total
	}
	return out, nil
}

func (r *rewardRepo) History(ctx context.Context, userID shared.UserID, since time.Time) ([]*reward.Event, error) {
	var rows []rewardEventRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT id, user_id, amount, source, source_id, description, created_at
		FROM reward_events
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC, rowid DESC
	`, string(userID), since.UTC())
	if err != nil {
		return nil, classify("Rewards.History", err)
	}

	events := make([]*reward.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toDomain())
	}
	return events, nil
}

func (r *rewardRepo) FindSnapshot(ctx context.Context, userID shared.UserID) (*reward.Snapshot, error) {
	var row snapshotRow
	err := r.q.GetContext(ctx, &row, `
		SELECT user_id, total_xp, level, version, updated_at
		FROM progression_snapshots
		WHERE user_id = ?
	`, string(userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSnapshotAbsent
		}
		return nil, classify("Rewards.FindSnapshot", err)
	}
	return &reward.Snapshot{
		UserID:    shared.UserID(row.UserID),
		TotalXP:   row.TotalXP,
		Level:     row.Level,
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

// SaveSnapshot upserts s and stores the new row version back into s.
func (r *rewardRepo) SaveSnapshot(ctx context.Context, s *reward.Snapshot) error {
	err := r.q.GetContext(ctx, &s.Version, `
		INSERT INTO progression_snapshots (user_id, total_xp, level, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = excluded.total_xp,
			level = excluded.level,
			version = progression_snapshots.version + 1,
			updated_at = excluded.updated_at
		RETURNING version
	`, string(s.UserID), s.TotalXP, s.Level, s.UpdatedAt.UTC())
	return classify("Rewards.SaveSnapshot", err)
}

func (r *rewardRepo) ListUserIDs(ctx context.Context, after shared.UserID, limit int) ([]shared.UserID, error) {
	var ids []string
	err := r.q.SelectContext(ctx, &ids, `
		SELECT DISTINCT user_id
		FROM reward_events
		WHERE user_id > ?
		ORDER BY user_id
		LIMIT ?
	`, string(after), limit)
	if err != nil {
		return nil, classify("Rewards.ListUserIDs", err)
	}

	out := make([]shared.UserID, len(ids))
	for i, id := range ids {
		out[i] = shared.UserID(id)
	}
	return out, nil
}
