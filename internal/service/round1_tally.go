package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"RemixVote/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TallyService 第一轮计票管线：四个阶段在同一事务内执行，任一阶段出错整体回滚，
// 比赛停留在计票前状态可安全重试。所有派生字段（得分/名次/晋级/资格）都从投票流水
// 全量重算，不做增量维护，因此重跑天然幂等。
type TallyService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewTallyService 创建 TallyService
func NewTallyService(db *gorm.DB, logger *logrus.Logger) *TallyService {
	return &TallyService{db: db, logger: logger}
}

// scoreAggregate 单件作品的票面聚合
type scoreAggregate struct {
	Points      int
	FirstVotes  int
	SecondVotes int
	ThirdVotes  int
}

// Round1TallyReport 计票审计报告，随 TallyRun 持久化
type Round1TallyReport struct {
	DisqualifiedVoters      []uint64 `json:"disqualified_voters"`
	DisqualifiedSubmissions []uint64 `json:"disqualified_submissions"`
	ScoredSubmissions       int      `json:"scored_submissions"`
	GroupCount              int      `json:"group_count"`
	AdvancedCount           int      `json:"advanced_count"`
	Round2EligibleCount     int      `json:"round2_eligible_count"`
	ValidationIssues        []string `json:"validation_issues"`
}

// TallyRound1 执行第一轮计票管线，返回晋级作品数。
// 前置：比赛处于 VotingRound1Open（首个效果即推进到 VotingRound1Tallying）或已在 Tallying；
// 其余状态报非法流转。对已在 Tallying 的比赛重复调用是安全的：全量重算不会二次扣分。
// Open->Tallying 的推进在管线事务之外单独提交：管线失败时比赛停在 Tallying 而非 Open，
// Tallying 本身就是合法重入状态，重试入口不受影响。
func (s *TallyService) TallyRound1(ctx context.Context, competitionID uint64) (int, error) {
	startedAt := time.Now()

	comp, err := loadCompetition(ctx, s.db, competitionID)
	if err != nil {
		return 0, err
	}
	switch comp.Status {
	case model.StatusVotingRound1Open:
		// 显式推进 Open -> Tallying；CAS落空说明另一调用已推进，按幂等重入继续
		res := s.db.WithContext(ctx).Model(&model.Competition{}).
			Where("id = ? AND status = ?", competitionID, model.StatusVotingRound1Open).
			Updates(map[string]interface{}{"status": model.StatusVotingRound1Tallying, "updated_at": time.Now()})
		if res.Error != nil {
			return 0, fmt.Errorf("推进计票状态失败: %w", res.Error)
		}
	case model.StatusVotingRound1Tallying:
		// 重入，继续
	default:
		return 0, &InvalidPhaseTransitionError{Current: comp.Status, Required: model.StatusVotingRound1Open}
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, fmt.Errorf("开启计票事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	report, advancedCount, err := s.runPipeline(tx, comp)
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	// 全部阶段成功后推进到第二轮准备
	res := tx.Model(&model.Competition{}).
		Where("id = ? AND status = ?", competitionID, model.StatusVotingRound1Tallying).
		Updates(map[string]interface{}{"status": model.StatusVotingRound2Setup, "updated_at": time.Now()})
	if res.Error != nil {
		tx.Rollback()
		return 0, fmt.Errorf("推进第二轮准备状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return 0, fmt.Errorf("比赛%d状态被并发修改，计票回滚", competitionID)
	}

	if err := tx.Commit().Error; err != nil {
		return 0, fmt.Errorf("提交计票事务失败: %w", err)
	}

	s.recordTallyRun(ctx, competitionID, 1, startedAt, advancedCount, report)
	s.logger.Infof("第一轮计票完成：比赛%d 晋级%d件，校验问题%d条",
		competitionID, advancedCount, len(report.ValidationIssues))
	return advancedCount, nil
}

// runPipeline 在事务内执行四个阶段，失败由调用方回滚
func (s *TallyService) runPipeline(tx *gorm.DB, comp *model.Competition) (*Round1TallyReport, int, error) {
	competitionID := comp.ID
	quota := comp.Round1AdvancementCount
	if quota <= 0 {
		quota = 3
	}

	var submissions []*model.Submission
	if err := tx.Where("competition_id = ?", competitionID).Order("id ASC").Find(&submissions).Error; err != nil {
		return nil, 0, fmt.Errorf("加载作品失败: %w", err)
	}
	var assignments []*model.Round1Assignment
	if err := tx.Where("competition_id = ?", competitionID).Find(&assignments).Error; err != nil {
		return nil, 0, fmt.Errorf("加载评审任务失败: %w", err)
	}
	var groups []*model.SubmissionGroup
	if err := tx.Where("competition_id = ?", competitionID).Find(&groups).Error; err != nil {
		return nil, 0, fmt.Errorf("加载分组失败: %w", err)
	}
	var votes []*model.SubmissionVote
	if err := tx.Where("competition_id = ? AND voting_round = ?", competitionID, 1).Find(&votes).Error; err != nil {
		return nil, 0, fmt.Errorf("加载投票流水失败: %w", err)
	}

	subByID := make(map[uint64]*model.Submission, len(submissions))
	subsByUser := make(map[uint64][]*model.Submission)
	for _, sub := range submissions {
		subByID[sub.ID] = sub
		subsByUser[sub.UserID] = append(subsByUser[sub.UserID], sub)
	}
	groupBySubmission := make(map[uint64]*model.SubmissionGroup, len(groups))
	groupsByNumber := make(map[int][]*model.SubmissionGroup)
	for _, g := range groups {
		groupBySubmission[g.SubmissionID] = g
		groupsByNumber[g.GroupNumber] = append(groupsByNumber[g.GroupNumber], g)
	}

	report := &Round1TallyReport{
		GroupCount:       len(groupsByNumber),
		ValidationIssues: []string{},
	}

	// ---- 阶段1：取消未履行评审义务者的参赛资格 ----
	// 判定基于管线开始时的快照：被评组当时有至少一件未取消资格的作品而投票人未投票，
	// 其名下全部作品取消资格；被评组本就无可评作品的不受罚
	groupHasEligible := make(map[int]bool)
	for num, rows := range groupsByNumber {
		for _, g := range rows {
			if sub := subByID[g.SubmissionID]; sub != nil && !sub.IsDisqualified {
				groupHasEligible[num] = true
				break
			}
		}
	}
	for _, a := range assignments {
		if a.HasVoted || !groupHasEligible[a.AssignedGroupNumber] {
			continue
		}
		report.DisqualifiedVoters = append(report.DisqualifiedVoters, a.VoterID)
		for _, sub := range subsByUser[a.VoterID] {
			if !sub.IsDisqualified {
				sub.IsDisqualified = true
				report.DisqualifiedSubmissions = append(report.DisqualifiedSubmissions, sub.ID)
			}
		}
	}

	// ---- 阶段2：从投票流水全量重算得分（唯一事实来源） ----
	aggregates := aggregateVotes(votes)
	for _, sub := range submissions {
		if sub.IsDisqualified {
			continue
		}
		agg := aggregates[sub.ID]
		sub.Round1Score = agg.Points
		report.ScoredSubmissions++
	}
	for _, g := range groups {
		agg := aggregates[g.SubmissionID]
		g.TotalPoints = agg.Points
		g.FirstPlaceVotes = agg.FirstVotes
		g.SecondPlaceVotes = agg.SecondVotes
		g.ThirdPlaceVotes = agg.ThirdVotes
		g.RankInGroup = nil
	}

	// ---- 阶段3：组内排名与晋级 ----
	// 排序键 (总分降, 一名票降, 二名票降, 三名票降, 作品ID升)，ID兜底保证全序确定
	advancedCount := 0
	for _, rows := range groupsByNumber {
		ranked := make([]*model.SubmissionGroup, 0, len(rows))
		for _, g := range rows {
			if sub := subByID[g.SubmissionID]; sub != nil && !sub.IsDisqualified {
				ranked = append(ranked, g)
			}
		}
		sortGroupRows(ranked)
		for i, g := range ranked {
			rank := i + 1
			g.RankInGroup = &rank
			sub := subByID[g.SubmissionID]
			if i < quota {
				sub.AdvancedToRound2 = true
				advancedCount++
			} else {
				// 显式写 false，保证重跑幂等
				sub.AdvancedToRound2 = false
			}
		}
	}
	for _, sub := range submissions {
		if sub.IsDisqualified {
			sub.AdvancedToRound2 = false
		}
	}
	report.AdvancedCount = advancedCount

	// ---- 阶段3.5：第二轮投票资格传播 ----
	// 资格 = 本人已投票 且 作品未取消资格；与是否晋级无关（晋级与投票资格是两条轴）
	votedUsers := make(map[uint64]bool, len(assignments))
	for _, a := range assignments {
		if a.HasVoted {
			votedUsers[a.VoterID] = true
		}
	}
	for _, sub := range submissions {
		sub.IsEligibleForRound2Voting = votedUsers[sub.UserID] && !sub.IsDisqualified
		if sub.IsEligibleForRound2Voting {
			report.Round2EligibleCount++
		}
	}

	// ---- 落库：作品与分组缓存字段整体重写 ----
	now := time.Now()
	for _, sub := range submissions {
		if err := tx.Model(&model.Submission{}).Where("id = ?", sub.ID).
			Updates(map[string]interface{}{
				"is_disqualified":               sub.IsDisqualified,
				"round1_score":                  sub.Round1Score,
				"advanced_to_round2":            sub.AdvancedToRound2,
				"is_eligible_for_round2_voting": sub.IsEligibleForRound2Voting,
				"updated_at":                    now,
			}).Error; err != nil {
			return nil, 0, fmt.Errorf("写回作品%d失败: %w", sub.ID, err)
		}
	}
	for _, g := range groups {
		if err := tx.Model(&model.SubmissionGroup{}).Where("id = ?", g.ID).
			Updates(map[string]interface{}{
				"total_points":       g.TotalPoints,
				"first_place_votes":  g.FirstPlaceVotes,
				"second_place_votes": g.SecondPlaceVotes,
				"third_place_votes":  g.ThirdPlaceVotes,
				"rank_in_group":      g.RankInGroup,
				"updated_at":         now,
			}).Error; err != nil {
			return nil, 0, fmt.Errorf("写回分组%d失败: %w", g.ID, err)
		}
	}

	// ---- 阶段4：交叉校验 ----
	// 校验失败仅记录不终止事务（见 DESIGN.md 的开放问题决策）：全量重算下重跑即可修复
	report.ValidationIssues = validateRound1(subByID, groupsByNumber, aggregates, votedUsers, submissions, quota)
	for _, issue := range report.ValidationIssues {
		s.logger.Errorf("第一轮计票校验异常 比赛%d: %s", competitionID, issue)
	}

	return report, advancedCount, nil
}

// validateRound1 阶段4交叉校验，返回问题清单
func validateRound1(
	subByID map[uint64]*model.Submission,
	groupsByNumber map[int][]*model.SubmissionGroup,
	aggregates map[uint64]scoreAggregate,
	votedUsers map[uint64]bool,
	submissions []*model.Submission,
	quota int,
) []string {
	issues := []string{}

	for num, rows := range groupsByNumber {
		eligibleInGroup := 0
		advancedInGroup := 0
		for _, g := range rows {
			sub := subByID[g.SubmissionID]
			if sub == nil {
				issues = append(issues, fmt.Sprintf("分组%d引用了不存在的作品%d", num, g.SubmissionID))
				continue
			}
			if sub.IsDisqualified {
				if sub.AdvancedToRound2 {
					issues = append(issues, fmt.Sprintf("已取消资格的作品%d被标记晋级", sub.ID))
				}
				continue
			}
			eligibleInGroup++
			if sub.AdvancedToRound2 {
				advancedInGroup++
			}
			// 流水重算与落库得分比对
			if agg := aggregates[sub.ID]; agg.Points != sub.Round1Score {
				issues = append(issues, fmt.Sprintf("作品%d得分与流水不一致: 落库=%d 重算=%d", sub.ID, sub.Round1Score, agg.Points))
			}
		}
		expected := quota
		if eligibleInGroup < expected {
			expected = eligibleInGroup
		}
		if advancedInGroup != expected {
			issues = append(issues, fmt.Sprintf("组%d晋级数异常: 应为%d 实为%d", num, expected, advancedInGroup))
		}
	}

	for _, sub := range submissions {
		want := votedUsers[sub.UserID] && !sub.IsDisqualified
		if sub.IsEligibleForRound2Voting != want {
			issues = append(issues, fmt.Sprintf("作品%d第二轮投票资格异常: 落库=%v 规则=%v", sub.ID, sub.IsEligibleForRound2Voting, want))
		}
	}
	return issues
}

// aggregateVotes 纯函数：流水 -> 每件作品的聚合票面
func aggregateVotes(votes []*model.SubmissionVote) map[uint64]scoreAggregate {
	out := make(map[uint64]scoreAggregate)
	for _, v := range votes {
		agg := out[v.SubmissionID]
		agg.Points += v.Points
		switch v.Rank {
		case 1:
			agg.FirstVotes++
		case 2:
			agg.SecondVotes++
		case 3:
			agg.ThirdVotes++
		}
		out[v.SubmissionID] = agg
	}
	return out
}

// sortGroupRows 组内排序：总分降、一名票降、二名票降、三名票降、作品ID升
func sortGroupRows(rows []*model.SubmissionGroup) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if a.FirstPlaceVotes != b.FirstPlaceVotes {
			return a.FirstPlaceVotes > b.FirstPlaceVotes
		}
		if a.SecondPlaceVotes != b.SecondPlaceVotes {
			return a.SecondPlaceVotes > b.SecondPlaceVotes
		}
		if a.ThirdPlaceVotes != b.ThirdPlaceVotes {
			return a.ThirdPlaceVotes > b.ThirdPlaceVotes
		}
		return a.SubmissionID < b.SubmissionID
	})
}

// recordTallyRun 事务提交后写审计记录，失败只告警不影响计票结果
func (s *TallyService) recordTallyRun(ctx context.Context, competitionID uint64, round int, startedAt time.Time, advancedCount int, report interface{}) {
	payload, err := json.Marshal(report)
	if err != nil {
		s.logger.WithError(err).Warn("序列化计票报告失败")
		payload = []byte("{}")
	}
	run := &model.TallyRun{
		CompetitionID: competitionID,
		Round:         round,
		StartedAt:     startedAt,
		FinishedAt:    time.Now(),
		AdvancedCount: advancedCount,
		Succeeded:     true,
		Report:        datatypes.JSON(payload),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		s.logger.WithError(err).WithField("competition_id", competitionID).Warn("写计票审计记录失败")
	}
}
