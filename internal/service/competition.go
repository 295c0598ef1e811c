package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"RemixVote/internal/model"
	"RemixVote/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CompetitionService 比赛生命周期服务：创建、查询与状态机流转。
// 所有阶段切换都由外部（管理员或编排方）显式触发，本服务不做任何定时驱动。
type CompetitionService struct {
	db              *gorm.DB
	logger          *logrus.Logger
	competitionRepo repository.CompetitionRepository
	submissionRepo  repository.SubmissionRepository
	groupRepo       repository.GroupRepository
}

// NewCompetitionService 创建 CompetitionService
func NewCompetitionService(db *gorm.DB, logger *logrus.Logger) *CompetitionService {
	return &CompetitionService{
		db:              db,
		logger:          logger,
		competitionRepo: repository.NewCompetitionRepository(db),
		submissionRepo:  repository.NewSubmissionRepository(db),
		groupRepo:       repository.NewGroupRepository(db),
	}
}

// CreateCompetition 创建比赛，初始状态 Upcoming
func (s *CompetitionService) CreateCompetition(ctx context.Context, title string, round1AdvancementCount int) (*model.Competition, error) {
	if round1AdvancementCount <= 0 {
		round1AdvancementCount = 3
	}
	c := &model.Competition{
		CompetitionUUID:        uuid.NewString(),
		Title:                  title,
		Status:                 model.StatusUpcoming,
		Round1AdvancementCount: round1AdvancementCount,
	}
	if err := s.competitionRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("创建比赛失败: %w", err)
	}
	s.logger.Infof("比赛创建成功 id=%d title=%s", c.ID, c.Title)
	return c, nil
}

// ResolveCompetition ref 为数字时当作主键 id，否则当作 competition_uuid 查询
func (s *CompetitionService) ResolveCompetition(ctx context.Context, ref string) (*model.Competition, error) {
	if ref == "" {
		return nil, ErrCompetitionNotFound
	}
	var (
		c   *model.Competition
		err error
	)
	if n, perr := strconv.ParseUint(ref, 10, 64); perr == nil {
		c, err = s.competitionRepo.GetByID(ctx, n)
	} else {
		c, err = s.competitionRepo.GetByUUID(ctx, ref)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("查询比赛失败: %w", err)
	}
	return c, nil
}

// transition 带CAS的状态流转：前置状态不匹配时返回 InvalidPhaseTransitionError
func (s *CompetitionService) transition(ctx context.Context, competitionID uint64, from, to model.CompetitionStatus) error {
	ok, err := s.competitionRepo.CompareAndSetStatus(ctx, competitionID, from, to)
	if err != nil {
		return fmt.Errorf("更新比赛状态失败: %w", err)
	}
	if !ok {
		current, err := loadCompetition(ctx, s.db, competitionID)
		if err != nil {
			return err
		}
		return &InvalidPhaseTransitionError{Current: current.Status, Required: from}
	}
	s.logger.Infof("比赛%d状态流转: %s -> %s", competitionID, from, to)
	return nil
}

// OpenSubmissions 开放投稿 Upcoming -> OpenForSubmissions
func (s *CompetitionService) OpenSubmissions(ctx context.Context, competitionID uint64) error {
	return s.transition(ctx, competitionID, model.StatusUpcoming, model.StatusOpenForSubmissions)
}

// CloseSubmissions 截稿并进入分组阶段 OpenForSubmissions -> VotingRound1Setup
func (s *CompetitionService) CloseSubmissions(ctx context.Context, competitionID uint64) error {
	return s.transition(ctx, competitionID, model.StatusOpenForSubmissions, model.StatusVotingRound1Setup)
}

// OpenRound1Voting 开启第一轮投票 VotingRound1Setup -> VotingRound1Open，要求分组已生成
func (s *CompetitionService) OpenRound1Voting(ctx context.Context, competitionID uint64) error {
	groups, err := s.groupRepo.ListGroups(ctx, competitionID)
	if err != nil {
		return fmt.Errorf("查询分组失败: %w", err)
	}
	if len(groups) == 0 {
		return fmt.Errorf("比赛%d尚未生成分组，不能开启第一轮投票", competitionID)
	}
	return s.transition(ctx, competitionID, model.StatusVotingRound1Setup, model.StatusVotingRound1Open)
}

// CloseRound2Voting 关闭第二轮投票进入计票 VotingRound2Open -> VotingRound2Tallying
func (s *CompetitionService) CloseRound2Voting(ctx context.Context, competitionID uint64) error {
	return s.transition(ctx, competitionID, model.StatusVotingRound2Open, model.StatusVotingRound2Tallying)
}

// ArchiveCompetition 归档 Completed -> Archived
func (s *CompetitionService) ArchiveCompetition(ctx context.Context, competitionID uint64) error {
	return s.transition(ctx, competitionID, model.StatusCompleted, model.StatusArchived)
}

// CreateSubmission 投稿。比赛须处于 OpenForSubmissions，每用户限投一件
func (s *CompetitionService) CreateSubmission(ctx context.Context, competitionID, userID uint64, title string) (*model.Submission, error) {
	comp, err := loadCompetition(ctx, s.db, competitionID)
	if err != nil {
		return nil, err
	}
	if comp.Status != model.StatusOpenForSubmissions {
		return nil, &InvalidPhaseTransitionError{Current: comp.Status, Required: model.StatusOpenForSubmissions}
	}
	existing, err := s.submissionRepo.ListByUser(ctx, competitionID, userID)
	if err != nil {
		return nil, fmt.Errorf("查询已有投稿失败: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("用户%d在比赛%d已有投稿", userID, competitionID)
	}
	sub := &model.Submission{
		SubmissionUUID:            uuid.NewString(),
		CompetitionID:             competitionID,
		UserID:                    userID,
		Title:                     title,
		IsEligibleForRound1Voting: true,
	}
	if err := s.submissionRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("保存投稿失败: %w", err)
	}
	return sub, nil
}

// loadCompetition 各服务共用的比赛加载，不存在时归一为 ErrCompetitionNotFound
func loadCompetition(ctx context.Context, db *gorm.DB, competitionID uint64) (*model.Competition, error) {
	var c model.Competition
	if err := db.WithContext(ctx).Where("id = ?", competitionID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("查询比赛失败: %w", err)
	}
	return &c, nil
}
