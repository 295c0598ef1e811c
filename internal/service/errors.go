package service

import (
	"errors"
	"fmt"

	"RemixVote/internal/model"
)

// ErrCompetitionNotFound 比赛不存在
var ErrCompetitionNotFound = errors.New("比赛不存在")

// InvalidPhaseTransitionError 状态前置条件不满足，携带当前/要求状态便于排障
type InvalidPhaseTransitionError struct {
	Current  model.CompetitionStatus
	Required model.CompetitionStatus
}

func (e *InvalidPhaseTransitionError) Error() string {
	return fmt.Sprintf("非法状态流转: 当前=%s 要求=%s", e.Current, e.Required)
}

// InsufficientSubmissionsError 可参评作品不足（分组或第二轮准备要求至少3件）
type InsufficientSubmissionsError struct {
	Required int
	Actual   int
}

func (e *InsufficientSubmissionsError) Error() string {
	return fmt.Sprintf("可参评作品不足: 要求至少%d件, 实际%d件", e.Required, e.Actual)
}

// IneligibleSelectionError 选中的作品不具备资格（心水榜或人工选冠军引用了未晋级/已取消资格作品）
type IneligibleSelectionError struct {
	SubmissionID uint64
	Reason       string
}

func (e *IneligibleSelectionError) Error() string {
	return fmt.Sprintf("作品%d不可选: %s", e.SubmissionID, e.Reason)
}
