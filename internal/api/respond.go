package api

import (
	"errors"
	"net/http"

	"RemixVote/internal/model"
	"RemixVote/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// respondServiceError 服务层错误到HTTP状态码的统一映射：
// 比赛不存在404、状态前置不满足409、业务资格类422、其余500
func respondServiceError(c *gin.Context, logger *logrus.Logger, op string, err error) {
	var phaseErr *service.InvalidPhaseTransitionError
	var insufficientErr *service.InsufficientSubmissionsError
	var ineligibleErr *service.IneligibleSelectionError
	switch {
	case errors.Is(err, service.ErrCompetitionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "competition not found"})
	case errors.As(err, &phaseErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":           "invalid competition phase",
			"current_status":  phaseErr.Current.String(),
			"required_status": phaseErr.Required.String(),
		})
	case errors.As(err, &insufficientErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "insufficient eligible submissions",
			"required": insufficientErr.Required,
			"actual":   insufficientErr.Actual,
		})
	case errors.As(err, &ineligibleErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":         "ineligible submission selected",
			"submission_id": ineligibleErr.SubmissionID,
			"reason":        ineligibleErr.Reason,
		})
	default:
		logger.WithError(err).Errorf("%s failed", op)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// resolveCompetition :id 既可是数字主键也可是 competition_uuid
func resolveCompetition(c *gin.Context, logger *logrus.Logger, svc *service.CompetitionService) (*model.Competition, bool) {
	comp, err := svc.ResolveCompetition(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, logger, "ResolveCompetition", err)
		return nil, false
	}
	return comp, true
}
