package api

import (
	"math/rand"
	"net/http"
	"strconv"

	"RemixVote/internal/config"
	"RemixVote/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// VotingHandler 分组、两轮投票与计票接口
type VotingHandler struct {
	competitionService *service.CompetitionService
	groupingService    *service.GroupingService
	votingService      *service.VotingService
	tallyService       *service.TallyService
	round2Service      *service.Round2Service
	logger             *logrus.Logger
	cfg                *config.Config
}

// NewVotingHandler 创建 VotingHandler。rng 为分组随机源（可播种复现）
func NewVotingHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config, rng *rand.Rand) *VotingHandler {
	return &VotingHandler{
		competitionService: service.NewCompetitionService(db, logger),
		groupingService:    service.NewGroupingService(db, logger, rng),
		votingService:      service.NewVotingService(db, logger),
		tallyService:       service.NewTallyService(db, logger),
		round2Service:      service.NewRound2Service(db, logger),
		logger:             logger,
		cfg:                cfg,
	}
}

type createGroupsRequest struct {
	TargetGroupSize int `json:"target_group_size"`
}

// CreateGroups 生成分组与评审任务（重跑整体重建）
// POST /api/competitions/:id/groups
func (h *VotingHandler) CreateGroups(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	var req createGroupsRequest
	_ = c.ShouldBindJSON(&req) // body 可空，落配置默认值
	if req.TargetGroupSize <= 0 {
		req.TargetGroupSize = h.cfg.Voting.TargetGroupSize
	}
	groupCount, err := h.groupingService.CreateGroups(c.Request.Context(), comp.ID, req.TargetGroupSize)
	if err != nil {
		respondServiceError(c, h.logger, "CreateGroups", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": comp.ID, "group_count": groupCount})
}

// GetAssignedSubmissions 投票人被指派评审组的作品列表
// GET /api/competitions/:id/assignments/:voter_id
func (h *VotingHandler) GetAssignedSubmissions(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	voterID, err := strconv.ParseUint(c.Param("voter_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "voter_id must be numeric"})
		return
	}
	submissions, err := h.votingService.GetAssignedSubmissions(c.Request.Context(), comp.ID, voterID)
	if err != nil {
		respondServiceError(c, h.logger, "GetAssignedSubmissions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": comp.ID, "voter_id": voterID, "submissions": submissions})
}

type round1BallotRequest struct {
	VoterID            uint64 `json:"voter_id" binding:"required"`
	FirstSubmissionID  uint64 `json:"first_submission_id" binding:"required"`
	SecondSubmissionID uint64 `json:"second_submission_id" binding:"required"`
	ThirdSubmissionID  uint64 `json:"third_submission_id" binding:"required"`
}

// SubmitBallot 第一轮选票。拒收返回422并携带原因，选票不可修改
// POST /api/competitions/:id/ballots
func (h *VotingHandler) SubmitBallot(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	var req round1BallotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "voter_id and three ranked submission ids are required"})
		return
	}
	accepted, reason, err := h.votingService.SubmitBallot(c.Request.Context(),
		comp.ID, req.VoterID, req.FirstSubmissionID, req.SecondSubmissionID, req.ThirdSubmissionID)
	if err != nil {
		respondServiceError(c, h.logger, "SubmitBallot", err)
		return
	}
	if !accepted {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"accepted": false, "reason": reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// TallyRound1 第一轮计票管线
// POST /api/competitions/:id/tally/round1
func (h *VotingHandler) TallyRound1(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	advancedCount, err := h.tallyService.TallyRound1(c.Request.Context(), comp.ID)
	if err != nil {
		respondServiceError(c, h.logger, "TallyRound1", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": comp.ID, "advanced_count": advancedCount})
}

// SetupRound2 开启第二轮投票
// POST /api/competitions/:id/round2/setup
func (h *VotingHandler) SetupRound2(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	finalistCount, err := h.round2Service.SetupRound2(c.Request.Context(), comp.ID)
	if err != nil {
		respondServiceError(c, h.logger, "SetupRound2", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": comp.ID, "finalist_count": finalistCount})
}

// GetRound2Eligibility 第二轮投票资格查询
// GET /api/competitions/:id/round2/eligibility/:user_id
func (h *VotingHandler) GetRound2Eligibility(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be numeric"})
		return
	}
	eligible, err := h.round2Service.IsEligibleVoter(c.Request.Context(), comp.ID, userID)
	if err != nil {
		respondServiceError(c, h.logger, "GetRound2Eligibility", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": comp.ID, "user_id": userID, "eligible": eligible})
}

type round2VoteRequest struct {
	VoterID            uint64 `json:"voter_id" binding:"required"`
	SubmissionID       uint64 `json:"submission_id"`
	FirstSubmissionID  uint64 `json:"first_submission_id"`
	SecondSubmissionID uint64 `json:"second_submission_id"`
	ThirdSubmissionID  uint64 `json:"third_submission_id"`
}

// SubmitRound2Vote 第二轮选票。submission_id 为"投一件最爱"通道；
// 三个 *_submission_id 为老版三档通道，两种只能选其一
// POST /api/competitions/:id/round2/votes
func (h *VotingHandler) SubmitRound2Vote(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	var req round2VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "voter_id is required"})
		return
	}

	ranked := req.FirstSubmissionID != 0 || req.SecondSubmissionID != 0 || req.ThirdSubmissionID != 0
	var (
		accepted bool
		reason   string
		err      error
	)
	switch {
	case req.SubmissionID != 0 && !ranked:
		accepted, reason, err = h.round2Service.RecordVote(c.Request.Context(), comp.ID, req.VoterID, req.SubmissionID)
	case req.SubmissionID == 0 && req.FirstSubmissionID != 0 && req.SecondSubmissionID != 0 && req.ThirdSubmissionID != 0:
		accepted, reason, err = h.round2Service.RecordRankedVotes(c.Request.Context(),
			comp.ID, req.VoterID, req.FirstSubmissionID, req.SecondSubmissionID, req.ThirdSubmissionID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide either submission_id or all three ranked submission ids"})
		return
	}
	if err != nil {
		respondServiceError(c, h.logger, "SubmitRound2Vote", err)
		return
	}
	if !accepted {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"accepted": false, "reason": reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// TallyRound2 第二轮计票与终局裁决
// POST /api/competitions/:id/tally/round2
func (h *VotingHandler) TallyRound2(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	result, err := h.round2Service.TallyRound2(c.Request.Context(), comp.ID)
	if err != nil {
		respondServiceError(c, h.logger, "TallyRound2", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type setWinnerRequest struct {
	SubmissionID uint64 `json:"submission_id" binding:"required"`
}

// SetWinner 人工选定冠军（完全平票后的兜底通道）
// POST /api/competitions/:id/winner
func (h *VotingHandler) SetWinner(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	var req setWinnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "submission_id is required"})
		return
	}
	if err := h.round2Service.SetWinner(c.Request.Context(), comp.ID, req.SubmissionID); err != nil {
		respondServiceError(c, h.logger, "SetWinner", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": comp.ID, "winner_submission_id": req.SubmissionID})
}
