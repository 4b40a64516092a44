package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/achievement"
	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// achievementRepo implements achievement.Repository.
type achievementRepo struct {
	q Querier
}

const achievementColumns = `id, code, name, description, category, condition_type, condition_value,
	xp_reward, is_hidden, rarity, sort_order, created_at, updated_at`

const progressColumns = `user_id, achievement_id, progress, is_unlocked, unlocked_at, is_notified, updated_at`

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func (r *achievementRepo) Create(ctx context.Context, a *achievement.Achievement) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO achievements (`+achievementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		a.ID, a.Code, a.Name, a.Description, string(a.Category), string(a.ConditionType), a.ConditionValue,
		a.XPReward, a.IsHidden, string(a.Rarity), a.SortOrder, a.CreatedAt, a.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return shared.ErrAchievementCodeTaken
	}
	return classify("Achievements.Create", err)
}

func (r *achievementRepo) Update(ctx context.Context, a *achievement.Achievement) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE achievements SET
			code = $2,
			name = $3,
			description = $4,
			category = $5,
			condition_type = $6,
			condition_value = $7,
			xp_reward = $8,
			is_hidden = $9,
			rarity = $10,
			sort_order = $11,
			updated_at = $12
		WHERE id = $1
	`,
		a.ID, a.Code, a.Name, a.Description, string(a.Category), string(a.ConditionType), a.ConditionValue,
		a.XPReward, a.IsHidden, string(a.Rarity), a.SortOrder, a.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return shared.ErrAchievementCodeTaken
	}
	if err != nil {
		return classify("Achievements.Update", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAchievementNotFound
	}
	return nil
}

func (r *achievementRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM achievements WHERE id = $1`, id)
	if err != nil {
		return classify("Achievements.Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAchievementNotFound
	}
	return nil
}

func (r *achievementRepo) FindByID(ctx context.Context, id uuid.UUID) (*achievement.Achievement, error) {
	a, err := scanAchievement(r.q.QueryRow(ctx,
		`SELECT `+achievementColumns+` FROM achievements WHERE id = $1`, id,
	))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAchievementNotFound
		}
		return nil, classify("Achievements.FindByID", err)
	}
	return a, nil
}

func (r *achievementRepo) List(ctx context.Context, filter achievement.CatalogFilter) ([]*achievement.Achievement, error) {
	var category *string
	if filter.Category != nil {
		c := string(*filter.Category)
		category = &c
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+achievementColumns+`
		FROM achievements
		WHERE ($1::TEXT IS NULL OR category = $1)
		  AND ($2 OR NOT is_hidden)
		ORDER BY sort_order ASC, code ASC
	`, category, filter.IncludeHidden)
	if err != nil {
		return nil, classify("Achievements.List", err)
	}
	defer rows.Close()

	var out []*achievement.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, classify("Achievements.List", err)
		}
		out = append(out, a)
	}
	return out, classify("Achievements.List", rows.Err())
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func (r *achievementRepo) RaiseProgress(ctx context.Context, userID shared.UserID, id uuid.UUID, value int64, now time.Time) (*achievement.Progress, error) {
	p, err := scanProgress(r.q.QueryRow(ctx, `
		INSERT INTO achievement_progress (user_id, achievement_id, progress, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			progress = GREATEST(achievement_progress.progress, EXCLUDED.progress),
			updated_at = EXCLUDED.updated_at
		RETURNING `+progressColumns,
		string(userID), id, value, now.UTC(),
	))
	if err != nil {
		return nil, classify("Achievements.RaiseProgress", err)
	}
	return p, nil
}

func (r *achievementRepo) MarkUnlocked(ctx context.Context, userID shared.UserID, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE achievement_progress
		SET is_unlocked = TRUE, unlocked_at = $3, updated_at = $3
		WHERE user_id = $1 AND achievement_id = $2 AND is_unlocked = FALSE
	`, string(userID), id, at.UTC())
	if err != nil {
		return false, classify("Achievements.MarkUnlocked", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *achievementRepo) FindProgress(ctx context.Context, userID shared.UserID, id uuid.UUID) (*achievement.Progress, error) {
	p, err := scanProgress(r.q.QueryRow(ctx, `
		SELECT `+progressColumns+`
		FROM achievement_progress
		WHERE user_id = $1 AND achievement_id = $2
	`, string(userID), id))
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, classify("Achievements.FindProgress", err)
	}
	return p, nil
}

func (r *achievementRepo) ListProgress(ctx context.Context, userID shared.UserID) ([]*achievement.Progress, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+progressColumns+`
		FROM achievement_progress
		WHERE user_id = $1
	`, string(userID))
	if err != nil {
		return nil, classify("Achievements.ListProgress", err)
	}
	return collectProgress("Achievements.ListProgress", rows)
}

func (r *achievementRepo) DrainUnnotified(ctx context.Context, userID shared.UserID) ([]*achievement.Progress, error) {
	rows, err := r.q.Query(ctx, `
		UPDATE achievement_progress
		SET is_notified = TRUE
		WHERE user_id = $1 AND is_unlocked = TRUE AND is_notified = FALSE
		RETURNING `+progressColumns,
		string(userID),
	)
	if err != nil {
		return nil, classify("Achievements.DrainUnnotified", err)
	}
	return collectProgress("Achievements.DrainUnnotified", rows)
}

type progressRows interface {
	scanner
	Next() bool
	Err() error
	Close()
}

func collectProgress(op string, rows progressRows) ([]*achievement.Progress, error) {
	defer rows.Close()

	var out []*achievement.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, p)
	}
	return out, classify(op, rows.Err())
}

func scanAchievement(row scanner) (*achievement.Achievement, error) {
	var (
		a                      achievement.Achievement
		category, cond, rarity string
	)
	err := row.Scan(
		&a.ID, &a.Code, &a.Name, &a.Description, &category, &cond, &a.ConditionValue,
		&a.XPReward, &a.IsHidden, &rarity, &a.SortOrder, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Category = achievement.Category(category)
	a.ConditionType = achievement.ConditionType(cond)
	a.Rarity = achievement.Rarity(rarity)
	return &a, nil
}

func scanProgress(row scanner) (*achievement.Progress, error) {
	var (
		p      achievement.Progress
		userID string
	)
	err := row.Scan(&userID, &p.AchievementID, &p.Progress, &p.IsUnlocked, &p.UnlockedAt, &p.IsNotified, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.UserID = shared.UserID(userID)
	return &p, nil
}
