package repository

import (
	"context"

	"RemixVote/internal/model"

	"gorm.io/gorm"
)

// GroupRepository 分组与评审任务仓储（SubmissionGroup + Round1Assignment 同生命周期，合并一个仓储）
type GroupRepository interface {
	// ListGroups 比赛下全部分组行
	ListGroups(ctx context.Context, competitionID uint64) ([]*model.SubmissionGroup, error)
	// ListGroupMembers 某组的作品（关联 submissions）
	ListGroupMembers(ctx context.Context, competitionID uint64, groupNumber int) ([]*model.Submission, error)
	// GetAssignment 某投票人的评审任务，不存在返回 gorm.ErrRecordNotFound
	GetAssignment(ctx context.Context, competitionID, voterID uint64) (*model.Round1Assignment, error)
	// ListAssignments 比赛下全部评审任务
	ListAssignments(ctx context.Context, competitionID uint64) ([]*model.Round1Assignment, error)
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository 创建 GroupRepository 实例
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) ListGroups(ctx context.Context, competitionID uint64) ([]*model.SubmissionGroup, error) {
	var list []*model.SubmissionGroup
	if err := r.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("group_number ASC, submission_id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *groupRepository) ListGroupMembers(ctx context.Context, competitionID uint64, groupNumber int) ([]*model.Submission, error) {
	var list []*model.Submission
	if err := r.db.WithContext(ctx).Model(&model.Submission{}).
		Joins("JOIN submission_groups ON submission_groups.submission_id = submissions.id").
		Where("submission_groups.competition_id = ? AND submission_groups.group_number = ?", competitionID, groupNumber).
		Order("submissions.id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *groupRepository) GetAssignment(ctx context.Context, competitionID, voterID uint64) (*model.Round1Assignment, error) {
	var a model.Round1Assignment
	if err := r.db.WithContext(ctx).
		Where("competition_id = ? AND voter_id = ?", competitionID, voterID).
		First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *groupRepository) ListAssignments(ctx context.Context, competitionID uint64) ([]*model.Round1Assignment, error) {
	var list []*model.Round1Assignment
	if err := r.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("voter_id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
