package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/goal"
	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// goalRepo implements goal.Repository.
type goalRepo struct {
	q Querier
}

const goalColumns = `id, user_id, title, description, goal_type, target_value, current_value,
	start_date, end_date, status, xp_reward, completed_at, created_at, updated_at`

func (r *goalRepo) Create(ctx context.Context, g *goal.Goal) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO goals (`+goalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		g.ID, string(g.UserID), g.Title, g.Description, string(g.Type), g.TargetValue, g.CurrentValue,
		g.StartDate, g.EndDate, string(g.Status), g.XPReward, g.CompletedAt, g.CreatedAt, g.UpdatedAt,
	)
	return classify("Goals.Create", err)
}

func (r *goalRepo) FindByID(ctx context.Context, id uuid.UUID) (*goal.Goal, error) {
	return r.find(ctx, "Goals.FindByID", `SELECT `+goalColumns+` FROM goals WHERE id = $1`, id)
}

func (r *goalRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*goal.Goal, error) {
	return r.find(ctx, "Goals.FindByIDForUpdate", `SELECT `+goalColumns+` FROM goals WHERE id = $1 FOR UPDATE`, id)
}

func (r *goalRepo) find(ctx context.Context, op, query string, id uuid.UUID) (*goal.Goal, error) {
	g, err := scanGoal(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGoalNotFound
		}
		return nil, classify(op, err)
	}
	return g, nil
}

func (r *goalRepo) SaveTransition(ctx context.Context, g *goal.Goal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE goals
		SET current_value = $2, status = $3, completed_at = $4, updated_at = $5
		WHERE id = $1 AND status = 'active'
	`, g.ID, g.CurrentValue, string(g.Status), g.CompletedAt, g.UpdatedAt)
	if err != nil {
		return classify("Goals.SaveTransition", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrGoalNotActive
	}
	return nil
}

func (r *goalRepo) ListByUser(ctx context.Context, userID shared.UserID, status *goal.Status) ([]*goal.Goal, error) {
	var st *string
	if status != nil {
		s := string(*status)
		st = &s
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+goalColumns+`
		FROM goals
		WHERE user_id = $1 AND ($2::TEXT IS NULL OR status = $2)
		ORDER BY end_date ASC, created_at ASC
	`, string(userID), st)
	if err != nil {
		return nil, classify("Goals.ListByUser", err)
	}
	defer rows.Close()

	var out []*goal.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, classify("Goals.ListByUser", err)
		}
		out = append(out, g)
	}
	return out, classify("Goals.ListByUser", rows.Err())
}

func (r *goalRepo) CountByStatus(ctx context.Context, userID shared.UserID, status goal.Status) (int, error) {
	var n int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM goals WHERE user_id = $1 AND status = $2`,
		string(userID), string(status),
	).Scan(&n)
	if err != nil {
		return 0, classify("Goals.CountByStatus", err)
	}
	return n, nil
}

func (r *goalRepo) Delete(ctx context.Context, id uuid.UUID, userID shared.UserID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM goals WHERE id = $1 AND user_id = $2`, id, string(userID))
	if err != nil {
		return classify("Goals.Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrGoalNotFound
	}
	return nil
}

func (r *goalRepo) FailExpired(ctx context.Context, asOf time.Time, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE goals
		SET status = 'failed', updated_at = $2
		WHERE status = 'active' AND end_date <= $1
	`, asOf.UTC(), now.UTC())
	if err != nil {
		return 0, classify("Goals.FailExpired", err)
	}
	return tag.RowsAffected(), nil
}

func scanGoal(row scanner) (*goal.Goal, error) {
	var (
		g                   goal.Goal
		userID, typ, status string
	)
	err := row.Scan(
		&g.ID, &userID, &g.Title, &g.Description, &typ, &g.TargetValue, &g.CurrentValue,
		&g.StartDate, &g.EndDate, &status, &g.XPReward, &g.CompletedAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.UserID = shared.UserID(userID)
	g.Type = goal.Type(typ)
	g.Status = goal.Status(status)
	g.StartDate = g.StartDate.UTC()
	g.EndDate = g.EndDate.UTC()
	return &g, nil
}
