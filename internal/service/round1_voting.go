package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RemixVote/internal/model"
	"RemixVote/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 第一轮名次分值：第一名3分、第二名2分、第三名1分
var round1PointsByRank = map[int]int{1: 3, 2: 2, 3: 1}

// VotingService 第一轮投票服务。选票的拒收（而非系统错误）以布尔结果返回，
// 调用方收到 accepted=false 时提示投票人重试或刷新即可。
type VotingService struct {
	db             *gorm.DB
	logger         *logrus.Logger
	groupRepo      repository.GroupRepository
	submissionRepo repository.SubmissionRepository
}

// NewVotingService 创建 VotingService
func NewVotingService(db *gorm.DB, logger *logrus.Logger) *VotingService {
	return &VotingService{
		db:             db,
		logger:         logger,
		groupRepo:      repository.NewGroupRepository(db),
		submissionRepo: repository.NewSubmissionRepository(db),
	}
}

// GetAssignedSubmissions 返回投票人被指派评审组的全部作品。
// 无评审任务返回空列表而非错误（对投票人来说就是"没有可评的"）。
func (s *VotingService) GetAssignedSubmissions(ctx context.Context, competitionID, voterID uint64) ([]*model.Submission, error) {
	assignment, err := s.groupRepo.GetAssignment(ctx, competitionID, voterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []*model.Submission{}, nil
		}
		return nil, fmt.Errorf("查询评审任务失败: %w", err)
	}
	members, err := s.groupRepo.ListGroupMembers(ctx, competitionID, assignment.AssignedGroupNumber)
	if err != nil {
		return nil, fmt.Errorf("查询被评组作品失败: %w", err)
	}
	return members, nil
}

// SubmitBallot 提交第一轮选票（第一/第二/第三名各一件作品）。
// 拒收场景一律 accepted=false + 原因，不抛错；仅数据库故障才返回 error。
// 整张选票是一个事务单元：has_voted 的 CAS 翻转与三条投票流水要么全部落库要么全不落库，
// 并发重复提交只有一个请求能命中 CAS，落败方不会写入任何投票行。
func (s *VotingService) SubmitBallot(ctx context.Context, competitionID, voterID, firstID, secondID, thirdID uint64) (accepted bool, reason string, err error) {
	comp, err := loadCompetition(ctx, s.db, competitionID)
	if err != nil {
		return false, "", err
	}
	if comp.Status != model.StatusVotingRound1Open {
		return false, "第一轮投票未开放", nil
	}
	if firstID == secondID || firstID == thirdID || secondID == thirdID {
		return false, "三个名次必须是不同作品", nil
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return false, "", fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	var assignment model.Round1Assignment
	if err := tx.Where("competition_id = ? AND voter_id = ?", competitionID, voterID).
		First(&assignment).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, "没有评审任务", nil
		}
		return false, "", fmt.Errorf("查询评审任务失败: %w", err)
	}
	if assignment.HasVoted {
		tx.Rollback()
		return false, "已提交过选票，选票不可修改", nil
	}

	// 三件作品必须全部属于被指派的组
	var memberCount int64
	if err := tx.Model(&model.SubmissionGroup{}).
		Where("competition_id = ? AND group_number = ? AND submission_id IN ?",
			competitionID, assignment.AssignedGroupNumber, []uint64{firstID, secondID, thirdID}).
		Count(&memberCount).Error; err != nil {
		tx.Rollback()
		return false, "", fmt.Errorf("校验作品归属失败: %w", err)
	}
	if memberCount != 3 {
		tx.Rollback()
		return false, "选票包含非被评组作品", nil
	}

	// CAS 翻转 has_voted：先抢占再写流水，并发落败方不会产生任何投票行
	now := time.Now()
	res := tx.Model(&model.Round1Assignment{}).
		Where("id = ? AND has_voted = ?", assignment.ID, false).
		Updates(map[string]interface{}{
			"has_voted":             true,
			"voting_completed_date": now,
		})
	if res.Error != nil {
		tx.Rollback()
		return false, "", fmt.Errorf("更新评审任务失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return false, "已提交过选票，选票不可修改", nil
	}

	for rank, submissionID := range map[int]uint64{1: firstID, 2: secondID, 3: thirdID} {
		vote := &model.SubmissionVote{
			CompetitionID: competitionID,
			SubmissionID:  submissionID,
			VoterID:       voterID,
			Rank:          rank,
			Points:        round1PointsByRank[rank],
			VotingRound:   1,
			VoteTime:      now,
		}
		if err := tx.Create(vote).Error; err != nil {
			tx.Rollback()
			return false, "", fmt.Errorf("保存投票流水失败 rank=%d: %w", rank, err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return false, "", fmt.Errorf("提交选票事务失败: %w", err)
	}
	s.logger.Infof("选票已记录：比赛%d 投票人%d 评审组%d", competitionID, voterID, assignment.AssignedGroupNumber)
	return true, "", nil
}
