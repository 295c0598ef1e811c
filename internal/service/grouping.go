package service

import (
	"context"
	"fmt"
	"math/rand"

	"RemixVote/internal/model"
	"RemixVote/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GroupingService 分组引擎：把可参评作品随机均衡分组，并给每位投稿人指派一个
// 非自己所在组的评审任务。随机源由外部注入（可播种），保证分组可复现可测试。
type GroupingService struct {
	db             *gorm.DB
	logger         *logrus.Logger
	rng            *rand.Rand
	submissionRepo repository.SubmissionRepository
}

// NewGroupingService 创建 GroupingService。rng 不可为 nil
func NewGroupingService(db *gorm.DB, logger *logrus.Logger, rng *rand.Rand) *GroupingService {
	return &GroupingService{
		db:             db,
		logger:         logger,
		rng:            rng,
		submissionRepo: repository.NewSubmissionRepository(db),
	}
}

// minEligibleSubmissions 分组最少作品数
const minEligibleSubmissions = 3

// CreateGroups 为比赛生成分组与评审任务，返回组数。
// 前置：比赛处于 VotingRound1Setup。幂等重置：重跑会先整体清空旧分组/任务再重建，绝不追加。
func (s *GroupingService) CreateGroups(ctx context.Context, competitionID uint64, targetGroupSize int) (int, error) {
	if targetGroupSize <= 0 {
		targetGroupSize = 20
	}

	comp, err := loadCompetition(ctx, s.db, competitionID)
	if err != nil {
		return 0, err
	}
	if comp.Status != model.StatusVotingRound1Setup {
		return 0, &InvalidPhaseTransitionError{Current: comp.Status, Required: model.StatusVotingRound1Setup}
	}

	// 1. 可参评作品与投票人集合（只有投稿人可投票）
	eligible, err := s.submissionRepo.ListEligibleRound1(ctx, competitionID)
	if err != nil {
		return 0, fmt.Errorf("查询可参评作品失败: %w", err)
	}
	if len(eligible) < minEligibleSubmissions {
		return 0, &InsufficientSubmissionsError{Required: minEligibleSubmissions, Actual: len(eligible)}
	}

	// 2. 随机打乱后轮询分发
	shuffled := make([]*model.Submission, len(eligible))
	copy(shuffled, eligible)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	groupCount := chooseGroupCount(len(shuffled), targetGroupSize)

	groupBySubmission := make(map[uint64]int, len(shuffled))
	groupByUser := make(map[uint64]int, len(shuffled))
	for i, sub := range shuffled {
		g := i%groupCount + 1
		groupBySubmission[sub.ID] = g
		groupByUser[sub.UserID] = g
	}

	// 3. 同一事务内：清空旧分组/任务 -> 写新分组 -> 写评审任务
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := tx.Where("competition_id = ?", competitionID).Delete(&model.SubmissionGroup{}).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("清空旧分组失败: %w", err)
	}
	if err := tx.Where("competition_id = ?", competitionID).Delete(&model.Round1Assignment{}).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("清空旧评审任务失败: %w", err)
	}

	for _, sub := range shuffled {
		row := &model.SubmissionGroup{
			CompetitionID: competitionID,
			SubmissionID:  sub.ID,
			GroupNumber:   groupBySubmission[sub.ID],
		}
		if err := tx.Create(row).Error; err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("保存分组失败 submission=%d: %w", sub.ID, err)
		}
	}

	// 每位投票人评审一个随机的其他组
	for _, sub := range eligible {
		voterGroup := groupByUser[sub.UserID]
		assigned := s.pickOtherGroup(competitionID, sub.UserID, voterGroup, groupCount)
		a := &model.Round1Assignment{
			CompetitionID:       competitionID,
			VoterID:             sub.UserID,
			VoterGroupNumber:    voterGroup,
			AssignedGroupNumber: assigned,
		}
		if err := tx.Create(a).Error; err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("保存评审任务失败 voter=%d: %w", sub.UserID, err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return 0, fmt.Errorf("提交分组事务失败: %w", err)
	}

	s.logger.Infof("分组完成：比赛%d %d件作品分为%d组，%d条评审任务",
		competitionID, len(shuffled), groupCount, len(eligible))
	return groupCount, nil
}

// pickOtherGroup 随机选一个非 voterGroup 的组号。无可选组（单组退化）时退回组1并记警告，
// 这是已知的策略缺口，不能无声吞掉。
func (s *GroupingService) pickOtherGroup(competitionID, voterID uint64, voterGroup, groupCount int) int {
	candidates := make([]int, 0, groupCount-1)
	for g := 1; g <= groupCount; g++ {
		if g != voterGroup {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		s.logger.WithFields(logrus.Fields{
			"competition_id": competitionID,
			"voter_id":       voterID,
			"group":          voterGroup,
		}).Warn("仅有单组可评审，投票人被指派评审自己所在组（退化场景）")
		return 1
	}
	return candidates[s.rng.Intn(len(candidates))]
}

// chooseGroupCount 按作品数定组数：≤6两组，≤12三组，≤20四组，
// 否则按目标组大小上取整，且保证平均每组不少于5件、组数不少于2
func chooseGroupCount(count, targetGroupSize int) int {
	switch {
	case count <= 6:
		return 2
	case count <= 12:
		return 3
	case count <= 20:
		return 4
	}
	groupCount := (count + targetGroupSize - 1) / targetGroupSize
	if count/groupCount < 5 {
		groupCount = count / 5
	}
	if groupCount < 2 {
		groupCount = 2
	}
	return groupCount
}
