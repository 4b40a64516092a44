package postgres

import (
	"context"
	"time"

	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// rewardRepo implements reward.Repository.
type rewardRepo struct {
	q Querier
}

const rewardEventColumns = `id, user_id, amount, source, source_id, description, created_at`

func (r *rewardRepo) Append(ctx context.Context, e *reward.Event) error {
	query := `
		INSERT INTO reward_events (` + rewardEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.Exec(ctx, query,
		e.ID, string(e.UserID), e.Amount, string(e.Source), e.SourceID, e.Description, e.CreatedAt,
	)
	return classify("Rewards.Append", err)
}

func (r *rewardRepo) SumForUser(ctx context.Context, userID shared.UserID) (int64, error) {
	var total int64
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::BIGINT FROM reward_events WHERE user_id = $1`,
		string(userID),
	).Scan(&total)
	if err != nil {
		return 0, classify("Rewards.SumForUser", err)
	}
	return total, nil
}

func (r *rewardRepo) SumBySource(ctx context.Context, userID shared.UserID) (map[reward.Source]int64, error) {
	rows, err := r.q.Query(ctx, `
		SELECT source, SUM(amount)::BIGINT
		FROM reward_events
		WHERE user_id = $1
		GROUP BY source
	`, string(userID))
	if err != nil {
		return nil, classify("Rewards.SumBySource", err)
	}
	defer rows.Close()

	out := make(map[reward.Source]int64)
	for rows.Next() {
		var src string
		var sum int64
		if err := rows.Scan(&src, &sum); err != nil {
			return nil, classify("Rewards.SumBySource", err)
		}
		out[reward.Source(src)] = sum
	}
	return out, classify("Rewards.SumBySource", rows.Err())
}

func (r *rewardRepo) History(ctx context.Context, userID shared.UserID, since time.Time) ([]*reward.Event, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+rewardEventColumns+`
		FROM reward_events
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, seq DESC
	`, string(userID), since.UTC())
	if err != nil {
		return nil, classify("Rewards.History", err)
	}
	defer rows.Close()

	var events []*reward.Event
	for rows.Next() {
		e, err := scanRewardEvent(rows)
		if err != nil {
			return nil, classify("Rewards.History", err)
		}
		events = append(events, e)
	}
	return events, classify("Rewards.History", rows.Err())
}

func (r *rewardRepo) FindSnapshot(ctx context.Context, userID shared.UserID) (*reward.Snapshot, error) {
	var (
		s      reward.Snapshot
		userid string
	)
	err := r.q.QueryRow(ctx, `
		SELECT user_id, total_xp, level, version, updated_at
		FROM progression_snapshots
		WHERE user_id = $1
	`, string(userID)).Scan(&userid, &s.TotalXP, &s.Level, &s.Version, &s.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSnapshotAbsent
		}
		return nil, classify("Rewards.FindSnapshot", err)
	}
	s.UserID = shared.UserID(userid)
	return &s, nil
}

// SaveSnapshot upserts s and stores the new row version back into s.
func (r *rewardRepo) SaveSnapshot(ctx context.Context, s *reward.Snapshot) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO progression_snapshots (user_id, total_xp, level, version, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp,
			level = EXCLUDED.level,
			version = progression_snapshots.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING version
	`, string(s.UserID), s.TotalXP, s.Level, s.UpdatedAt).Scan(&s.Version)
	return classify("Rewards.SaveSnapshot", err)
}

func (r *rewardRepo) ListUserIDs(ctx context.Context, after shared.UserID, limit int) ([]shared.UserID, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT user_id
		FROM reward_events
		WHERE user_id > $1
		ORDER BY user_id
		LIMIT $2
	`, string(after), limit)
	if err != nil {
		return nil, classify("Rewards.ListUserIDs", err)
	}
	defer rows.Close()

	var ids []shared.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("Rewards.ListUserIDs", err)
		}
		ids = append(ids, shared.UserID(id))
	}
	return ids, classify("Rewards.ListUserIDs", rows.Err())
}

func scanRewardEvent(row scanner) (*reward.Event, error) {
	var (
		e      reward.Event
		userID string
		source string
	)
	if err := row.Scan(&e.ID, &userID, &e.Amount, &source, &e.SourceID, &e.Description, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.UserID = shared.UserID(userID)
	e.Source = reward.Source(source)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
