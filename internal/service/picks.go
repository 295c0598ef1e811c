package service

import (
	"context"
	"errors"
	"fmt"

	"RemixVote/internal/model"
	"RemixVote/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// maxSongCreatorPicks 心水榜最多3个名次
const maxSongCreatorPicks = 3

// PickService 原曲作者心水榜：独立于计票的旁路榜单，只能引用晋级作品，每次提交整体替换
type PickService struct {
	db             *gorm.DB
	logger         *logrus.Logger
	pickRepo       repository.PickRepository
	submissionRepo repository.SubmissionRepository
}

// NewPickService 创建 PickService
func NewPickService(db *gorm.DB, logger *logrus.Logger) *PickService {
	return &PickService{
		db:             db,
		logger:         logger,
		pickRepo:       repository.NewPickRepository(db),
		submissionRepo: repository.NewSubmissionRepository(db),
	}
}

// PickEntry 心水榜单条输入
type PickEntry struct {
	SubmissionID uint64 `json:"submission_id" binding:"required"`
	Comment      string `json:"comment"`
}

// RecordPicks 记录心水榜。比赛须已进入第二轮准备及之后阶段（晋级名单已定），
// 最多3条，按入参顺序取名次1..3；每件作品必须属于本比赛、已晋级且未取消资格
func (s *PickService) RecordPicks(ctx context.Context, competitionID uint64, entries []PickEntry) error {
	comp, err := loadCompetition(ctx, s.db, competitionID)
	if err != nil {
		return err
	}
	if !comp.Status.HasReached(model.StatusVotingRound2Setup) {
		return &InvalidPhaseTransitionError{Current: comp.Status, Required: model.StatusVotingRound2Setup}
	}
	if len(entries) == 0 {
		return fmt.Errorf("心水榜不能为空")
	}
	if len(entries) > maxSongCreatorPicks {
		return fmt.Errorf("心水榜最多%d件作品, 实际%d件", maxSongCreatorPicks, len(entries))
	}

	seen := make(map[uint64]bool, len(entries))
	picks := make([]*model.SongCreatorPick, 0, len(entries))
	for i, entry := range entries {
		if seen[entry.SubmissionID] {
			return &IneligibleSelectionError{SubmissionID: entry.SubmissionID, Reason: "作品重复出现"}
		}
		seen[entry.SubmissionID] = true

		sub, err := s.submissionRepo.GetByID(ctx, entry.SubmissionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &IneligibleSelectionError{SubmissionID: entry.SubmissionID, Reason: "作品不存在"}
			}
			return fmt.Errorf("查询作品失败: %w", err)
		}
		if sub.CompetitionID != competitionID {
			return &IneligibleSelectionError{SubmissionID: entry.SubmissionID, Reason: "作品不属于本比赛"}
		}
		if !sub.AdvancedToRound2 {
			return &IneligibleSelectionError{SubmissionID: entry.SubmissionID, Reason: "作品未晋级第二轮"}
		}
		if sub.IsDisqualified {
			return &IneligibleSelectionError{SubmissionID: entry.SubmissionID, Reason: "作品已被取消资格"}
		}
		picks = append(picks, &model.SongCreatorPick{
			CompetitionID: competitionID,
			SubmissionID:  entry.SubmissionID,
			Rank:          i + 1,
			Comment:       entry.Comment,
		})
	}

	if err := s.pickRepo.ReplacePicks(ctx, competitionID, picks); err != nil {
		return fmt.Errorf("保存心水榜失败: %w", err)
	}
	s.logger.Infof("心水榜已更新：比赛%d 共%d条", competitionID, len(picks))
	return nil
}

// ListPicks 按名次返回心水榜
func (s *PickService) ListPicks(ctx context.Context, competitionID uint64) ([]*model.SongCreatorPick, error) {
	if _, err := loadCompetition(ctx, s.db, competitionID); err != nil {
		return nil, err
	}
	return s.pickRepo.ListByCompetition(ctx, competitionID)
}
