package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/goal"
	"github.com/skillpath/progression-engine/internal/domain/shared"
)

type goalRow struct {
	ID           uuid.UUID    `db:"id"`
	UserID       string       `db:"user_id"`
	Title        string       `db:"title"`
	Description  string       `db:"description"`
	Type         string       `db:"goal_type"`
	TargetValue  int64        `db:"target_value"`
	CurrentValue int64        `db:"current_value"`
	StartDate    time.Time    `db:"start_date"`
	EndDate      time.Time    `db:"end_date"`
	Status       string       `db:"status"`
	XPReward     int64        `db:"xp_reward"`
	CompletedAt  sql.NullTime `db:"completed_at"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r goalRow) toDomain() *goal.Goal {
	return &goal.Goal{
		ID:           r.ID,
		UserID:       shared.UserID(r.UserID),
		Title:        r.Title,
		Description:  r.Description,
		Type:         goal.Type(r.Type),
		TargetValue:  r.TargetValue,
		CurrentValue: r.CurrentValue,
		StartDate:    r.StartDate.UTC(),
		EndDate:      r.EndDate.UTC(),
		Status:       goal.Status(r.Status),
		XPReward:     r.XPReward,
		CompletedAt:  fromNullTime(r.CompletedAt),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

const goalSelect = `SELECT id, user_id, title, description, goal_type, target_value, current_value,
	start_date, end_date, status, xp_reward, completed_at, created_at, updated_at FROM goals`

// goalRepo implements goal.Repository.
type goalRepo struct {
	q Querier
}

func (r *goalRepo) Create(ctx context.Context, g *goal.Goal) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, title, description, goal_type, target_value, current_value,
			start_date, end_date, status, xp_reward, completed_at, created_at, updated_at)
		VALUES (`+placeholders(14)+`)
	`, g.ID, string(g.UserID), g.Title, g.Description, string(g.Type), g.TargetValue, g.CurrentValue,
		g.StartDate.UTC(), g.EndDate.UTC(), string(g.Status), g.XPReward, toNullTime(g.CompletedAt),
		g.CreatedAt.UTC(), g.UpdatedAt.UTC())
	return classify("Goals.Create", err)
}

func (r *goalRepo) FindByID(ctx context.Context, id uuid.UUID) (*goal.Goal, error) {
	var row goalRow
	if err := r.q.GetContext(ctx, &row, goalSelect+` WHERE id = ?`, id); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGoalNotFound
		}
		return nil, classify("Goals.FindByID", err)
	}
	return row.toDomain(), nil
}

// FindByIDForUpdate is FindByID: an immediate transaction already excludes
// other writers.
func (r *goalRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*goal.Goal, error) {
	return r.FindByID(ctx, id)
}

func (r *goalRepo) SaveTransition(ctx context.Context, g *goal.Goal) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE goals
		SET current_value = ?, status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'active'
	`, g.CurrentValue, string(g.Status), toNullTime(g.CompletedAt), g.UpdatedAt.UTC(), g.ID)
	if err != nil {
		return classify("Goals.SaveTransition", err)
	}
	return requireRow(res, shared.ErrGoalNotActive)
}

func (r *goalRepo) ListByUser(ctx context.Context, userID shared.UserID, status *goal.Status) ([]*goal.Goal, error) {
	var st any
	if status != nil {
		st = string(*status)
	}

	var rows []goalRow
	err := r.q.SelectContext(ctx, &rows, goalSelect+`
		WHERE user_id = ? AND (? IS NULL OR status = ?)
		ORDER BY end_date ASC, created_at ASC
	`, string(userID), st, st)
	if err != nil {
		return nil, classify("Goals.ListByUser", err)
	}

	out := make([]*goal.Goal, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *goalRepo) CountByStatus(ctx context.Context, userID shared.UserID, status goal.Status) (int, error) {
	var n int
	err := r.q.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM goals WHERE user_id = ? AND status = ?`, string(userID), string(status))
	if err != nil {
		return 0, classify("Goals.CountByStatus", err)
	}
	return n, nil
}

func (r *goalRepo) Delete(ctx context.Context, id uuid.UUID, userID shared.UserID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM goals WHERE id = ? AND user_id = ?`, id, string(userID))
	if err != nil {
		return classify("Goals.Delete", err)
	}
	return requireRow(res, shared.ErrGoalNotFound)
}

func (r *goalRepo) FailExpired(ctx context.Context, asOf time.Time, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE goals
		SET status = 'failed', updated_at = ?
		WHERE status = 'active' AND end_date <= ?
	`, now.UTC(), asOf.UTC())
	if err != nil {
		return 0, classify("Goals.FailExpired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("Goals.FailExpired", err)
	}
	return n, nil
}
