package api

import (
	"net/http"

	"RemixVote/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CompetitionHandler 比赛生命周期与旁路榜单接口
type CompetitionHandler struct {
	competitionService *service.CompetitionService
	standingsService   *service.StandingsService
	pickService        *service.PickService
	logger             *logrus.Logger
}

// NewCompetitionHandler 创建 CompetitionHandler
func NewCompetitionHandler(db *gorm.DB, logger *logrus.Logger) *CompetitionHandler {
	return &CompetitionHandler{
		competitionService: service.NewCompetitionService(db, logger),
		standingsService:   service.NewStandingsService(db, logger),
		pickService:        service.NewPickService(db, logger),
		logger:             logger,
	}
}

type createCompetitionRequest struct {
	Title                  string `json:"title" binding:"required"`
	Round1AdvancementCount int    `json:"round1_advancement_count"`
}

// CreateCompetition 创建比赛
// POST /api/competitions
func (h *CompetitionHandler) CreateCompetition(c *gin.Context) {
	var req createCompetitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	comp, err := h.competitionService.CreateCompetition(c.Request.Context(), req.Title, req.Round1AdvancementCount)
	if err != nil {
		respondServiceError(c, h.logger, "CreateCompetition", err)
		return
	}
	c.JSON(http.StatusCreated, comp)
}

// GetCompetition 比赛详情。:id 为数字时即主键，否则按 competition_uuid 解析
// GET /api/competitions/:id
func (h *CompetitionHandler) GetCompetition(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"competition": comp,
		"status_name": comp.Status.String(),
	})
}

type createSubmissionRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
	Title  string `json:"title" binding:"required"`
}

// CreateSubmission 投稿
// POST /api/competitions/:id/submissions
func (h *CompetitionHandler) CreateSubmission(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and title are required"})
		return
	}
	sub, err := h.competitionService.CreateSubmission(c.Request.Context(), comp.ID, req.UserID, req.Title)
	if err != nil {
		respondServiceError(c, h.logger, "CreateSubmission", err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// Transition 生命周期流转统一入口，:action 取值见 transitions 表
// POST /api/competitions/:id/transitions/:action
func (h *CompetitionHandler) Transition(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	action := c.Param("action")
	transitions := map[string]func() error{
		"open-submissions":    func() error { return h.competitionService.OpenSubmissions(c.Request.Context(), comp.ID) },
		"close-submissions":   func() error { return h.competitionService.CloseSubmissions(c.Request.Context(), comp.ID) },
		"open-round1-voting":  func() error { return h.competitionService.OpenRound1Voting(c.Request.Context(), comp.ID) },
		"close-round2-voting": func() error { return h.competitionService.CloseRound2Voting(c.Request.Context(), comp.ID) },
		"archive":             func() error { return h.competitionService.ArchiveCompetition(c.Request.Context(), comp.ID) },
	}
	fn, known := transitions[action]
	if !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown transition action: " + action})
		return
	}
	if err := fn(); err != nil {
		respondServiceError(c, h.logger, "Transition "+action, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": comp.ID, "action": action})
}

// GetGroupStandings 分组榜单
// GET /api/competitions/:id/standings
func (h *CompetitionHandler) GetGroupStandings(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	standings, err := h.standingsService.GetGroupStandings(c.Request.Context(), comp.ID)
	if err != nil {
		respondServiceError(c, h.logger, "GetGroupStandings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": comp.ID, "groups": standings})
}

type recordPicksRequest struct {
	Picks []service.PickEntry `json:"picks" binding:"required"`
}

// RecordPicks 原曲作者心水榜（整体替换）
// POST /api/competitions/:id/picks
func (h *CompetitionHandler) RecordPicks(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	var req recordPicksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "picks is required"})
		return
	}
	if err := h.pickService.RecordPicks(c.Request.Context(), comp.ID, req.Picks); err != nil {
		respondServiceError(c, h.logger, "RecordPicks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": comp.ID, "pick_count": len(req.Picks)})
}

// ListPicks 心水榜查询
// GET /api/competitions/:id/picks
func (h *CompetitionHandler) ListPicks(c *gin.Context) {
	comp, ok := resolveCompetition(c, h.logger, h.competitionService)
	if !ok {
		return
	}
	picks, err := h.pickService.ListPicks(c.Request.Context(), comp.ID)
	if err != nil {
		respondServiceError(c, h.logger, "ListPicks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": comp.ID, "picks": picks})
}
