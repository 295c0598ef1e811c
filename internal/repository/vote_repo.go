package repository

import (
	"context"

	"RemixVote/internal/model"

	"gorm.io/gorm"
)

// VoteRepository 投票流水仓储（只读查询；写入全部发生在选票事务内，见 service 层）
type VoteRepository interface {
	// ListByRound 比赛某轮全部流水
	ListByRound(ctx context.Context, competitionID uint64, round int) ([]*model.SubmissionVote, error)
	// ListBySubmission 某作品某轮全部流水
	ListBySubmission(ctx context.Context, competitionID, submissionID uint64, round int) ([]*model.SubmissionVote, error)
	// CountByVoter 某投票人某轮已投票数
	CountByVoter(ctx context.Context, competitionID, voterID uint64, round int) (int64, error)
}

type voteRepository struct {
	db *gorm.DB
}

// NewVoteRepository 创建 VoteRepository 实例
func NewVoteRepository(db *gorm.DB) VoteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) ListByRound(ctx context.Context, competitionID uint64, round int) ([]*model.SubmissionVote, error) {
	var list []*model.SubmissionVote
	if err := r.db.WithContext(ctx).
		Where("competition_id = ? AND voting_round = ?", competitionID, round).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *voteRepository) ListBySubmission(ctx context.Context, competitionID, submissionID uint64, round int) ([]*model.SubmissionVote, error) {
	var list []*model.SubmissionVote
	if err := r.db.WithContext(ctx).
		Where("competition_id = ? AND submission_id = ? AND voting_round = ?", competitionID, submissionID, round).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *voteRepository) CountByVoter(ctx context.Context, competitionID, voterID uint64, round int) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.SubmissionVote{}).
		Where("competition_id = ? AND voter_id = ? AND voting_round = ?", competitionID, voterID, round).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
