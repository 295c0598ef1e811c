package service

import (
	"context"
	"fmt"
	"sort"

	"RemixVote/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StandingsService 榜单查询服务：把分组缓存字段与作品状态拼成只读视图
type StandingsService struct {
	db             *gorm.DB
	logger         *logrus.Logger
	groupRepo      repository.GroupRepository
	submissionRepo repository.SubmissionRepository
}

// NewStandingsService 创建 StandingsService
func NewStandingsService(db *gorm.DB, logger *logrus.Logger) *StandingsService {
	return &StandingsService{
		db:             db,
		logger:         logger,
		groupRepo:      repository.NewGroupRepository(db),
		submissionRepo: repository.NewSubmissionRepository(db),
	}
}

// GroupStandingEntry 组内单件作品的榜面
type GroupStandingEntry struct {
	SubmissionID     uint64 `json:"submission_id"`
	Title            string `json:"title"`
	UserID           uint64 `json:"user_id"`
	TotalPoints      int    `json:"total_points"`
	FirstPlaceVotes  int    `json:"first_place_votes"`
	SecondPlaceVotes int    `json:"second_place_votes"`
	ThirdPlaceVotes  int    `json:"third_place_votes"`
	RankInGroup      *int   `json:"rank_in_group"`
	AdvancedToRound2 bool   `json:"advanced_to_round2"`
	IsDisqualified   bool   `json:"is_disqualified"`
}

// GroupStanding 单组榜单
type GroupStanding struct {
	GroupNumber int                  `json:"group_number"`
	Entries     []GroupStandingEntry `json:"entries"`
}

// GetGroupStandings 返回比赛的分组榜单。组内按名次升序（未排名的排在最后，按作品ID升序兜底）
func (s *StandingsService) GetGroupStandings(ctx context.Context, competitionID uint64) ([]GroupStanding, error) {
	if _, err := loadCompetition(ctx, s.db, competitionID); err != nil {
		return nil, err
	}

	groups, err := s.groupRepo.ListGroups(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("查询分组失败: %w", err)
	}
	submissions, err := s.submissionRepo.ListByCompetition(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("查询作品失败: %w", err)
	}
	subByID := make(map[uint64]int, len(submissions))
	for i, sub := range submissions {
		subByID[sub.ID] = i
	}

	byNumber := make(map[int][]GroupStandingEntry)
	for _, g := range groups {
		entry := GroupStandingEntry{
			SubmissionID:     g.SubmissionID,
			TotalPoints:      g.TotalPoints,
			FirstPlaceVotes:  g.FirstPlaceVotes,
			SecondPlaceVotes: g.SecondPlaceVotes,
			ThirdPlaceVotes:  g.ThirdPlaceVotes,
			RankInGroup:      g.RankInGroup,
		}
		if i, ok := subByID[g.SubmissionID]; ok {
			sub := submissions[i]
			entry.Title = sub.Title
			entry.UserID = sub.UserID
			entry.AdvancedToRound2 = sub.AdvancedToRound2
			entry.IsDisqualified = sub.IsDisqualified
		}
		byNumber[g.GroupNumber] = append(byNumber[g.GroupNumber], entry)
	}

	numbers := make([]int, 0, len(byNumber))
	for num := range byNumber {
		numbers = append(numbers, num)
	}
	sort.Ints(numbers)

	out := make([]GroupStanding, 0, len(numbers))
	for _, num := range numbers {
		entries := byNumber[num]
		sort.Slice(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			switch {
			case a.RankInGroup != nil && b.RankInGroup != nil:
				return *a.RankInGroup < *b.RankInGroup
			case a.RankInGroup != nil:
				return true
			case b.RankInGroup != nil:
				return false
			}
			return a.SubmissionID < b.SubmissionID
		})
		out = append(out, GroupStanding{GroupNumber: num, Entries: entries})
	}
	return out, nil
}
