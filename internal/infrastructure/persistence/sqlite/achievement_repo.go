package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/achievement"
	"github.com/skillpath/progression-engine/internal/domain/shared"
)

type achievementRow struct {
	ID             uuid.UUID `db:"id"`
	Code           string    `db:"code"`
	Name           string    `db:"name"`
	Description    string    `db:"description"`
	Category       string    `db:"category"`
	ConditionType  string    `db:"condition_type"`
	ConditionValue int64     `db:"condition_value"`
	XPReward       int64     `db:"xp_reward"`
	IsHidden       bool      `db:"is_hidden"`
	Rarity         string    `db:"rarity"`
	SortOrder      int       `db:"sort_order"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r achievementRow) toDomain() *achievement.Achievement {
	return &achievement.Achievement{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		Description:    r.Description,
		Category:       achievement.Category(r.Category),
		ConditionType:  achievement.ConditionType(r.ConditionType),
		ConditionValue: r.ConditionValue,
		XPReward:       r.XPReward,
		IsHidden:       r.IsHidden,
		Rarity:         achievement.Rarity(r.Rarity),
		SortOrder:      r.SortOrder,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type progressRow struct {
	UserID        string       `db:"user_id"`
	AchievementID uuid.UUID    `db:"achievement_id"`
	Progress      int64        `db:"progress"`
	IsUnlocked    bool         `db:"is_unlocked"`
	UnlockedAt    sql.NullTime `db:"unlocked_at"`
	IsNotified    bool         `db:"is_notified"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r progressRow) toDomain() *achievement.Progress {
	return &achievement.Progress{
		UserID:        shared.UserID(r.UserID),
		AchievementID: r.AchievementID,
		Progress:      r.Progress,
		IsUnlocked:    r.IsUnlocked,
		UnlockedAt:    fromNullTime(r.UnlockedAt),
		IsNotified:    r.IsNotified,
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func progressList(rows []progressRow) []*achievement.Progress {
	out := make([]*achievement.Progress, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

const (
	achievementSelect = `SELECT id, code, name, description, category, condition_type, condition_value,
		xp_reward, is_hidden, rarity, sort_order, created_at, updated_at FROM achievements`
	progressReturning = `user_id, achievement_id, progress, is_unlocked, unlocked_at, is_notified, updated_at`
)

// achievementRepo implements achievement.Repository.
type achievementRepo struct {
	q Querier
}

func (r *achievementRepo) Create(ctx context.Context, a *achievement.Achievement) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO achievements (id, code, name, description, category, condition_type, condition_value,
			xp_reward, is_hidden, rarity, sort_order, created_at, updated_at)
		VALUES (`+placeholders(13)+`)
	`, a.ID, a.Code, a.Name, a.Description, string(a.Category), string(a.ConditionType), a.ConditionValue,
		a.XPReward, a.IsHidden, string(a.Rarity), a.SortOrder, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if IsUniqueViolation(err) {
		return shared.ErrAchievementCodeTaken
	}
	return classify("Achievements.Create", err)
}

func (r *achievementRepo) Update(ctx context.Context, a *achievement.Achievement) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE achievements SET
			code = ?, name = ?, description = ?, category = ?, condition_type = ?, condition_value = ?,
			xp_reward = ?, is_hidden = ?, rarity = ?, sort_order = ?, updated_at = ?
		WHERE id = ?
	`, a.Code, a.Name, a.Description, string(a.Category), string(a.ConditionType), a.ConditionValue,
		a.XPReward, a.IsHidden, string(a.Rarity), a.SortOrder, a.UpdatedAt.UTC(), a.ID)
	if IsUniqueViolation(err) {
		return shared.ErrAchievementCodeTaken
	}
	if err != nil {
		return classify("Achievements.Update", err)
	}
	return requireRow(res, shared.ErrAchievementNotFound)
}

func (r *achievementRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM achievements WHERE id = ?`, id)
	if err != nil {
		return classify("Achievements.Delete", err)
	}
	return requireRow(res, shared.ErrAchievementNotFound)
}

func (r *achievementRepo) FindByID(ctx context.Context, id uuid.UUID) (*achievement.Achievement, error) {
	var row achievementRow
	if err := r.q.GetContext(ctx, &row, achievementSelect+` WHERE id = ?`, id); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAchievementNotFound
		}
		return nil, classify("Achievements.FindByID", err)
	}
	return row.toDomain(), nil
}

func (r *achievementRepo) List(ctx context.Context, filter achievement.CatalogFilter) ([]*achievement.Achievement, error) {
	var category any
	if filter.Category != nil {
		category = string(*filter.Category)
	}

	var rows []achievementRow
	err := r.q.SelectContext(ctx, &rows, achievementSelect+`
		WHERE (? IS NULL OR category = ?)
		  AND (? OR is_hidden = 0)
		ORDER BY sort_order ASC, code ASC
	`, category, category, filter.IncludeHidden)
	if err != nil {
		return nil, classify("Achievements.List", err)
	}

	out := make([]*achievement.Achievement, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *achievementRepo) RaiseProgress(ctx context.Context, userID shared.UserID, id uuid.UUID, value int64, now time.Time) (*achievement.Progress, error) {
	var row progressRow
	err := r.q.GetContext(ctx, &row, `
		INSERT INTO achievement_progress (user_id, achievement_id, progress, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			progress = MAX(achievement_progress.progress, excluded.progress),
			updated_at = excluded.updated_at
		RETURNING `+progressReturning,
		string(userID), id, value, now.UTC())
	if err != nil {
		return nil, classify("Achievements.RaiseProgress", err)
	}
	return row.toDomain(), nil
}

func (r *achievementRepo) MarkUnlocked(ctx context.Context, userID shared.UserID, id uuid.UUID, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE achievement_progress
		SET is_unlocked = 1, unlocked_at = ?, updated_at = ?
		WHERE user_id = ? AND achievement_id = ? AND is_unlocked = 0
	`, at.UTC(), at.UTC(), string(userID), id)
	if err != nil {
		return false, classify("Achievements.MarkUnlocked", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("Achievements.MarkUnlocked", err)
	}
	return n == 1, nil
}

func (r *achievementRepo) FindProgress(ctx context.Context, userID shared.UserID, id uuid.UUID) (*achievement.Progress, error) {
	var row progressRow
	err := r.q.GetContext(ctx, &row, `
		SELECT `+progressReturning+`
		FROM achievement_progress
		WHERE user_id = ? AND achievement_id = ?
	`, string(userID), id)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, classify("Achievements.FindProgress", err)
	}
	return row.toDomain(), nil
}

func (r *achievementRepo) ListProgress(ctx context.Context, userID shared.UserID) ([]*achievement.Progress, error) {
	var rows []progressRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT `+progressReturning+`
		FROM achievement_progress
		WHERE user_id = ?
	`, string(userID))
	if err != nil {
		return nil, classify("Achievements.ListProgress", err)
	}
	return progressList(rows), nil
}

func (r *achievementRepo) DrainUnnotified(ctx context.Context, userID shared.UserID) ([]*achievement.Progress, error) {
	var rows []progressRow
	err := r.q.SelectContext(ctx, &rows, `
		UPDATE achievement_progress
		SET is_notified = 1
		WHERE user_id = ? AND is_unlocked = 1 AND is_notified = 0
		RETURNING `+progressReturning,
		string(userID))
	if err != nil {
		return nil, classify("Achievements.DrainUnnotified", err)
	}
	return progressList(rows), nil
}

// requireRow returns notFound when res changed no rows.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
