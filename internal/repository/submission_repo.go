package repository

import (
	"context"

	"RemixVote/internal/model"

	"gorm.io/gorm"
)

// SubmissionRepository 参赛作品仓储
type SubmissionRepository interface {
	Create(ctx context.Context, s *model.Submission) error
	GetByID(ctx context.Context, id uint64) (*model.Submission, error)
	// ListByCompetition 比赛下全部作品
	ListByCompetition(ctx context.Context, competitionID uint64) ([]*model.Submission, error)
	// ListEligibleRound1 第一轮可参评作品（未取消资格且具备第一轮资格）
	ListEligibleRound1(ctx context.Context, competitionID uint64) ([]*model.Submission, error)
	// ListAdvanced 已晋级第二轮且未取消资格的作品
	ListAdvanced(ctx context.Context, competitionID uint64) ([]*model.Submission, error)
	// ListByUser 某用户在该比赛下的全部作品
	ListByUser(ctx context.Context, competitionID, userID uint64) ([]*model.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository 创建 SubmissionRepository 实例
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, s *model.Submission) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint64) (*model.Submission, error) {
	var s model.Submission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *submissionRepository) ListByCompetition(ctx context.Context, competitionID uint64) ([]*model.Submission, error) {
	var list []*model.Submission
	if err := r.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *submissionRepository) ListEligibleRound1(ctx context.Context, competitionID uint64) ([]*model.Submission, error) {
	var list []*model.Submission
	if err := r.db.WithContext(ctx).
		Where("competition_id = ? AND is_disqualified = ? AND is_eligible_for_round1_voting = ?", competitionID, false, true).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *submissionRepository) ListAdvanced(ctx context.Context, competitionID uint64) ([]*model.Submission, error) {
	var list []*model.Submission
	if err := r.db.WithContext(ctx).
		Where("competition_id = ? AND advanced_to_round2 = ? AND is_disqualified = ?", competitionID, true, false).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *submissionRepository) ListByUser(ctx context.Context, competitionID, userID uint64) ([]*model.Submission, error) {
	var list []*model.Submission
	if err := r.db.WithContext(ctx).
		Where("competition_id = ? AND user_id = ?", competitionID, userID).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
