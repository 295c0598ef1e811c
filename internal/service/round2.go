package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"RemixVote/internal/model"
	"RemixVote/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Round2Service 第二轮（决赛圈）投票与终局裁决：
// 晋级作品接受第一轮被淘汰选手的投票，计票得出冠军或判定完全平票转人工裁决。
type Round2Service struct {
	db             *gorm.DB
	logger         *logrus.Logger
	submissionRepo repository.SubmissionRepository
	voteRepo       repository.VoteRepository
}

// NewRound2Service 创建 Round2Service
func NewRound2Service(db *gorm.DB, logger *logrus.Logger) *Round2Service {
	return &Round2Service{
		db:             db,
		logger:         logger,
		submissionRepo: repository.NewSubmissionRepository(db),
		voteRepo:       repository.NewVoteRepository(db),
	}
}

// Round2Result 第二轮计票结论：要么有确定冠军，要么完全平票待人工裁决
type Round2Result struct {
	Winner            *model.Submission `json:"winner,omitempty"`
	Tie               bool              `json:"tie"`
	TiedSubmissionIDs []uint64          `json:"tied_submission_ids,omitempty"`
}

// Round2TallyReport 第二轮计票审计报告
type Round2TallyReport struct {
	FinalistCount     int      `json:"finalist_count"`
	BallotCount       int      `json:"ballot_count"`
	Tie               bool     `json:"tie"`
	WinnerID          uint64   `json:"winner_id,omitempty"`
	TiedSubmissionIDs []uint64 `json:"tied_submission_ids,omitempty"`
}

// SetupRound2 开启第二轮投票。前置状态 VotingRound2Setup；要求至少3件晋级且未取消资格的作品。
// 成功后状态变为 VotingRound2Open，返回晋级作品数
func (s *Round2Service) SetupRound2(ctx context.Context, competitionID uint64) (int, error) {
	comp, err := loadCompetition(ctx, s.db, competitionID)
	if err != nil {
		return 0, err
	}
	if comp.Status != model.StatusVotingRound2Setup {
		return 0, &InvalidPhaseTransitionError{Current: comp.Status, Required: model.StatusVotingRound2Setup}
	}
	advanced, err := s.submissionRepo.ListAdvanced(ctx, competitionID)
	if err != nil {
		return 0, fmt.Errorf("查询晋级作品失败: %w", err)
	}
	if len(advanced) < minEligibleSubmissions {
		return 0, &InsufficientSubmissionsError{Required: minEligibleSubmissions, Actual: len(advanced)}
	}
	res := s.db.WithContext(ctx).Model(&model.Competition{}).
		Where("id = ? AND status = ?", competitionID, model.StatusVotingRound2Setup).
		Updates(map[string]interface{}{"status": model.StatusVotingRound2Open, "updated_at": time.Now()})
	if res.Error != nil {
		return 0, fmt.Errorf("开启第二轮投票失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, lerr := loadCompetition(ctx, s.db, competitionID)
		if lerr != nil {
			return 0, lerr
		}
		return 0, &InvalidPhaseTransitionError{Current: current.Status, Required: model.StatusVotingRound2Setup}
	}
	s.logger.Infof("第二轮投票开启：比赛%d 决赛圈%d件作品", competitionID, len(advanced))
	return len(advanced), nil
}

// IsEligibleVoter 判定第二轮投票资格：比赛处于第二轮投票中；该用户在本比赛有投稿；
// 名下作品无一晋级（被淘汰者投票，决赛选手不给自己拉票）；无一被取消资格；且尚未投完本轮应投票数
func (s *Round2Service) IsEligibleVoter(ctx context.Context, competitionID, userID uint64) (bool, error) {
	comp, err := loadCompetition(ctx, s.db, competitionID)
	if err != nil {
		return false, err
	}
	if comp.Status != model.StatusVotingRound2Open {
		return false, nil
	}
	subs, err := s.submissionRepo.ListByUser(ctx, competitionID, userID)
	if err != nil {
		return false, fmt.Errorf("查询用户投稿失败: %w", err)
	}
	if len(subs) == 0 {
		return false, nil
	}
	for _, sub := range subs {
		if sub.AdvancedToRound2 || sub.IsDisqualified {
			return false, nil
		}
	}
	voted, err := s.voteRepo.CountByVoter(ctx, competitionID, userID, 2)
	if err != nil {
		return false, fmt.Errorf("查询已投票数失败: %w", err)
	}
	return voted == 0, nil
}

// RecordVote 第二轮"投一件最爱"选票：1票1分。拒收以布尔结果返回。
// 同一投票人本轮已有任何流水即拒收，单票/三档老版通道共用该防重判定，不会重复计票
func (s *Round2Service) RecordVote(ctx context.Context, competitionID, voterID, submissionID uint64) (accepted bool, reason string, err error) {
	return s.recordBallot(ctx, competitionID, voterID, []rankedPick{{SubmissionID: submissionID, Rank: 1, Points: 1}})
}

// RecordRankedVotes 老版三档选票通道（3/2/1分），为历史客户端保留
func (s *Round2Service) RecordRankedVotes(ctx context.Context, competitionID, voterID, firstID, secondID, thirdID uint64) (accepted bool, reason string, err error) {
	if firstID == secondID || firstID == thirdID || secondID == thirdID {
		return false, "三个名次必须是不同作品", nil
	}
	return s.recordBallot(ctx, competitionID, voterID, []rankedPick{
		{SubmissionID: firstID, Rank: 1, Points: 3},
		{SubmissionID: secondID, Rank: 2, Points: 2},
		{SubmissionID: thirdID, Rank: 3, Points: 1},
	})
}

type rankedPick struct {
	SubmissionID uint64
	Rank         int
	Points       int
}

func (s *Round2Service) recordBallot(ctx context.Context, competitionID, voterID uint64, picks []rankedPick) (bool, string, error) {
	comp, err := loadCompetition(ctx, s.db, competitionID)
	if err != nil {
		return false, "", err
	}
	if comp.Status != model.StatusVotingRound2Open {
		return false, "第二轮投票未开放", nil
	}

	// 投票人资格：本比赛投稿人、未晋级、未取消资格
	subs, err := s.submissionRepo.ListByUser(ctx, competitionID, voterID)
	if err != nil {
		return false, "", fmt.Errorf("查询用户投稿失败: %w", err)
	}
	if len(subs) == 0 {
		return false, "仅本比赛投稿人可投票", nil
	}
	for _, sub := range subs {
		if sub.AdvancedToRound2 {
			return false, "决赛选手不参与第二轮投票", nil
		}
		if sub.IsDisqualified {
			return false, "已取消资格的选手不可投票", nil
		}
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

	// 防重：本轮已有任何流水即拒收（单票与老版三档共用）
	var existing int64
	if err := tx.Model(&model.SubmissionVote{}).
		Where("competition_id = ? AND voter_id = ? AND voting_round = ?", competitionID, voterID, 2).
		Count(&existing).Error; err != nil {
		tx.Rollback()
		return false, "", fmt.Errorf("查询已投票数失败: %w", err)
	}
	if existing > 0 {
		tx.Rollback()
		return false, "本轮已投过票", nil
	}

	// 所有被投作品必须是晋级且未取消资格的决赛圈作品
	ids := make([]uint64, 0, len(picks))
	for _, p := range picks {
		ids = append(ids, p.SubmissionID)
	}
	var finalistCount int64
	if err := tx.Model(&model.Submission{}).
		Where("competition_id = ? AND id IN ? AND advanced_to_round2 = ? AND is_disqualified = ?",
			competitionID, ids, true, false).
		Count(&finalistCount).Error; err != nil {
		tx.Rollback()
		return false, "", fmt.Errorf("校验决赛圈作品失败: %w", err)
	}
	if finalistCount != int64(len(ids)) {
		tx.Rollback()
		return false, "选票包含非决赛圈作品", nil
	}

	now := time.Now()
	for _, p := range picks {
		vote := &model.SubmissionVote{
			CompetitionID: competitionID,
			SubmissionID:  p.SubmissionID,
			VoterID:       voterID,
			Rank:          p.Rank,
			Points:        p.Points,
			VotingRound:   2,
			VoteTime:      now,
		}
		if err := tx.Create(vote).Error; err != nil {
			tx.Rollback()
			// 唯一索引兜底：并发重复提交表现为冲突，按"已投过"拒收
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return false, "本轮已投过票", nil
			}
			return false, "", fmt.Errorf("保存第二轮投票失败: %w", err)
		}
	}
	if err := tx.Commit().Error; err != nil {
		return false, "", fmt.Errorf("提交第二轮选票失败: %w", err)
	}
	return true, "", nil
}

// TallyRound2 第二轮计票。前置状态 VotingRound2Tallying（由 CloseRound2Voting 显式进入）。
// 最高总分唯一者直接夺冠；并列时比一名票数，仍并列则返回完全平票信号转人工裁决
func (s *Round2Service) TallyRound2(ctx context.Context, competitionID uint64) (*Round2Result, error) {
	startedAt := time.Now()

	comp, err := loadCompetition(ctx, s.db, competitionID)
	if err != nil {
		return nil, err
	}
	if comp.Status != model.StatusVotingRound2Tallying {
		return nil, &InvalidPhaseTransitionError{Current: comp.Status, Required: model.StatusVotingRound2Tallying}
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("开启计票事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	var finalists []*model.Submission
	if err := tx.Where("competition_id = ? AND advanced_to_round2 = ? AND is_disqualified = ?",
		competitionID, true, false).Order("id ASC").Find(&finalists).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("加载决赛圈作品失败: %w", err)
	}
	var votes []*model.SubmissionVote
	if err := tx.Where("competition_id = ? AND voting_round = ?", competitionID, 2).Find(&votes).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("加载第二轮流水失败: %w", err)
	}

	aggregates := aggregateVotes(votes)
	for _, sub := range finalists {
		agg := aggregates[sub.ID]
		sub.Round2Score = agg.Points
		sub.FinalScore = agg.Points
	}

	winner, tiedIDs := resolveWinner(finalists, aggregates)

	report := &Round2TallyReport{
		FinalistCount:     len(finalists),
		BallotCount:       len(votes),
		Tie:               winner == nil,
		TiedSubmissionIDs: tiedIDs,
	}

	now := time.Now()
	if winner == nil {
		// 完全平票：落库得分后转人工裁决
		for _, sub := range finalists {
			if err := tx.Model(&model.Submission{}).Where("id = ?", sub.ID).
				Updates(map[string]interface{}{
					"round2_score": sub.Round2Score,
					"final_score":  sub.FinalScore,
					"updated_at":   now,
				}).Error; err != nil {
				tx.Rollback()
				return nil, fmt.Errorf("写回作品%d失败: %w", sub.ID, err)
			}
		}
		res := tx.Model(&model.Competition{}).
			Where("id = ? AND status = ?", competitionID, model.StatusVotingRound2Tallying).
			Updates(map[string]interface{}{"status": model.StatusRequiresManualWinnerSelection, "updated_at": now})
		if res.Error != nil || res.RowsAffected == 0 {
			tx.Rollback()
			return nil, fmt.Errorf("转人工裁决状态失败: %v", res.Error)
		}
		if err := tx.Commit().Error; err != nil {
			return nil, fmt.Errorf("提交计票事务失败: %w", err)
		}
		s.recordTallyRun(ctx, competitionID, startedAt, 0, report)
		s.logger.Warnf("第二轮计票完全平票：比赛%d 并列作品%v，转人工选定冠军", competitionID, tiedIDs)
		return &Round2Result{Tie: true, TiedSubmissionIDs: tiedIDs}, nil
	}

	// 有确定冠军：按终榜顺序写名次，冠军置位，其余显式清位
	ordered := make([]*model.Submission, len(finalists))
	copy(ordered, finalists)
	sortFinalists(ordered, aggregates)
	for i, sub := range ordered {
		rank := i + 1
		sub.FinalRank = &rank
		sub.IsWinner = sub.ID == winner.ID
		if err := tx.Model(&model.Submission{}).Where("id = ?", sub.ID).
			Updates(map[string]interface{}{
				"round2_score": sub.Round2Score,
				"final_score":  sub.FinalScore,
				"final_rank":   *sub.FinalRank,
				"is_winner":    sub.IsWinner,
				"updated_at":   now,
			}).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("写回作品%d失败: %w", sub.ID, err)
		}
	}
	res := tx.Model(&model.Competition{}).
		Where("id = ? AND status = ?", competitionID, model.StatusVotingRound2Tallying).
		Updates(map[string]interface{}{"status": model.StatusCompleted, "updated_at": now})
	if res.Error != nil || res.RowsAffected == 0 {
		tx.Rollback()
		return nil, fmt.Errorf("推进完成状态失败: %v", res.Error)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("提交计票事务失败: %w", err)
	}

	report.WinnerID = winner.ID
	s.recordTallyRun(ctx, competitionID, startedAt, 1, report)
	s.logger.Infof("第二轮计票完成：比赛%d 冠军作品%d 总分%d", competitionID, winner.ID, winner.FinalScore)
	return &Round2Result{Winner: winner}, nil
}

// SetWinner 人工选定冠军。仅在 VotingRound2Tallying 或 RequiresManualWinnerSelection 状态下有效；
// 作品必须属于本比赛、已晋级且未取消资格。成功后清掉其他冠军标记并置 Completed
func (s *Round2Service) SetWinner(ctx context.Context, competitionID, submissionID uint64) error {
	comp, err := loadCompetition(ctx, s.db, competitionID)
	if err != nil {
		return err
	}
	if comp.Status != model.StatusVotingRound2Tallying && comp.Status != model.StatusRequiresManualWinnerSelection {
		return &InvalidPhaseTransitionError{Current: comp.Status, Required: model.StatusRequiresManualWinnerSelection}
	}

	sub, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &IneligibleSelectionError{SubmissionID: submissionID, Reason: "作品不存在"}
		}
		return fmt.Errorf("查询作品失败: %w", err)
	}
	if sub.CompetitionID != competitionID {
		return &IneligibleSelectionError{SubmissionID: submissionID, Reason: "作品不属于本比赛"}
	}
	if !sub.AdvancedToRound2 {
		return &IneligibleSelectionError{SubmissionID: submissionID, Reason: "作品未晋级第二轮"}
	}
	if sub.IsDisqualified {
		return &IneligibleSelectionError{SubmissionID: submissionID, Reason: "作品已被取消资格"}
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	now := time.Now()
	if err := tx.Model(&model.Submission{}).
		Where("competition_id = ? AND is_winner = ?", competitionID, true).
		Updates(map[string]interface{}{"is_winner": false, "updated_at": now}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("清除旧冠军标记失败: %w", err)
	}
	if err := tx.Model(&model.Submission{}).Where("id = ?", submissionID).
		Updates(map[string]interface{}{"is_winner": true, "final_rank": 1, "updated_at": now}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("写入冠军标记失败: %w", err)
	}
	res := tx.Model(&model.Competition{}).
		Where("id = ? AND status IN ?", competitionID,
			[]model.CompetitionStatus{model.StatusVotingRound2Tallying, model.StatusRequiresManualWinnerSelection}).
		Updates(map[string]interface{}{"status": model.StatusCompleted, "updated_at": now})
	if res.Error != nil || res.RowsAffected == 0 {
		tx.Rollback()
		return fmt.Errorf("推进完成状态失败: %v", res.Error)
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("提交人工裁决失败: %w", err)
	}
	s.logger.Infof("人工选定冠军：比赛%d 作品%d", competitionID, submissionID)
	return nil
}

// resolveWinner 冠军裁决：最高总分唯一者胜出；并列时一名票数唯一最高者胜出；
// 仍并列则返回 nil 与并列作品ID清单（完全平票）
func resolveWinner(finalists []*model.Submission, aggregates map[uint64]scoreAggregate) (*model.Submission, []uint64) {
	if len(finalists) == 0 {
		return nil, nil
	}
	maxPoints := finalists[0].Round2Score
	for _, sub := range finalists {
		if sub.Round2Score > maxPoints {
			maxPoints = sub.Round2Score
		}
	}
	tied := make([]*model.Submission, 0, 2)
	for _, sub := range finalists {
		if sub.Round2Score == maxPoints {
			tied = append(tied, sub)
		}
	}
	if len(tied) == 1 {
		return tied[0], nil
	}

	// 平票先比一名票数
	maxFirst := aggregates[tied[0].ID].FirstVotes
	for _, sub := range tied {
		if aggregates[sub.ID].FirstVotes > maxFirst {
			maxFirst = aggregates[sub.ID].FirstVotes
		}
	}
	topByFirst := make([]*model.Submission, 0, 2)
	for _, sub := range tied {
		if aggregates[sub.ID].FirstVotes == maxFirst {
			topByFirst = append(topByFirst, sub)
		}
	}
	if len(topByFirst) == 1 {
		return topByFirst[0], nil
	}

	ids := make([]uint64, 0, len(topByFirst))
	for _, sub := range topByFirst {
		ids = append(ids, sub.ID)
	}
	return nil, ids
}

// sortFinalists 终榜排序：总分降、一名票降、二名票降、三名票降、作品ID升
func sortFinalists(subs []*model.Submission, aggregates map[uint64]scoreAggregate) {
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		aa, ba := aggregates[a.ID], aggregates[b.ID]
		if aa.Points != ba.Points {
			return aa.Points > ba.Points
		}
		if aa.FirstVotes != ba.FirstVotes {
			return aa.FirstVotes > ba.FirstVotes
		}
		if aa.SecondVotes != ba.SecondVotes {
			return aa.SecondVotes > ba.SecondVotes
		}
		if aa.ThirdVotes != ba.ThirdVotes {
			return aa.ThirdVotes > ba.ThirdVotes
		}
		return a.ID < b.ID
	})
}

// recordTallyRun 第二轮计票审计记录（提交后写入，失败只告警）
func (s *Round2Service) recordTallyRun(ctx context.Context, competitionID uint64, startedAt time.Time, advancedCount int, report *Round2TallyReport) {
	ts := &TallyService{db: s.db, logger: s.logger}
	ts.recordTallyRun(ctx, competitionID, 2, startedAt, advancedCount, report)
}
