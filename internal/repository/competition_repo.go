package repository

import (
	"context"
	"time"

	"RemixVote/internal/model"

	"gorm.io/gorm"
)

// CompetitionRepository 比赛仓储
type CompetitionRepository interface {
	Create(ctx context.Context, c *model.Competition) error
	GetByID(ctx context.Context, id uint64) (*model.Competition, error)
	GetByUUID(ctx context.Context, competitionUUID string) (*model.Competition, error)
	// CompareAndSetStatus 带前置状态的CAS状态更新，返回是否命中。
	// 状态机单写者约束靠它落地：前置状态不匹配时零行命中，调用方据此报非法流转。
	CompareAndSetStatus(ctx context.Context, id uint64, from, to model.CompetitionStatus) (bool, error)
}

type competitionRepository struct {
	db *gorm.DB
}

// NewCompetitionRepository 创建 CompetitionRepository 实例
func NewCompetitionRepository(db *gorm.DB) CompetitionRepository {
	return &competitionRepository{db: db}
}

func (r *competitionRepository) Create(ctx context.Context, c *model.Competition) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *competitionRepository) GetByID(ctx context.Context, id uint64) (*model.Competition, error) {
	var c model.Competition
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *competitionRepository) GetByUUID(ctx context.Context, competitionUUID string) (*model.Competition, error) {
	var c model.Competition
	if err := r.db.WithContext(ctx).Where("competition_uuid = ?", competitionUUID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *competitionRepository) CompareAndSetStatus(ctx context.Context, id uint64, from, to model.CompetitionStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Competition{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
