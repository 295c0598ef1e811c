package repository

import (
	"context"
	"fmt"

	"RemixVote/internal/model"

	"gorm.io/gorm"
)

// PickRepository 原曲作者心水榜仓储
type PickRepository interface {
	// ReplacePicks 整体替换比赛的心水榜（先删后插，同一事务）
	ReplacePicks(ctx context.Context, competitionID uint64, picks []*model.SongCreatorPick) error
	// ListByCompetition 按名次返回心水榜
	ListByCompetition(ctx context.Context, competitionID uint64) ([]*model.SongCreatorPick, error)
}

type pickRepository struct {
	db *gorm.DB
}

// NewPickRepository 创建 PickRepository 实例
func NewPickRepository(db *gorm.DB) PickRepository {
	return &pickRepository{db: db}
}

// ReplacePicks 整体替换：旧榜单全删，新榜单全插，不做合并
func (r *pickRepository) ReplacePicks(ctx context.Context, competitionID uint64, picks []*model.SongCreatorPick) error {
	// 开启事务
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := tx.Where("competition_id = ?", competitionID).
		Delete(&model.SongCreatorPick{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("清除旧心水榜失败: %w", err)
	}
	for _, p := range picks {
		if err := tx.Create(p).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("保存心水榜失败 rank=%d: %w", p.Rank, err)
		}
	}
	return tx.Commit().Error
}

func (r *pickRepository) ListByCompetition(ctx context.Context, competitionID uint64) ([]*model.SongCreatorPick, error) {
	var list []*model.SongCreatorPick
	if err := r.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("rank ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
