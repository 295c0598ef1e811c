package service

import (
	"context"
	"testing"

	"RemixVote/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPickFixture(t *testing.T, dbName string) (*round2Fixture, *PickService) {
	t.Helper()
	fx, r2 := newRound2Fixture(t, dbName, model.StatusVotingRound2Setup, 3)
	return fx, NewPickService(r2.db, newTestLogger())
}

func TestRecordPicksWholesaleReplace(t *testing.T) {
	fx, svc := newPickFixture(t, "picks_replace")
	ctx := context.Background()
	s1, s2, s3 := fx.finalists[0], fx.finalists[1], fx.finalists[2]

	require.NoError(t, svc.RecordPicks(ctx, fx.comp.ID, []PickEntry{
		{SubmissionID: s1.ID, Comment: "低音处理最对味"},
		{SubmissionID: s2.ID},
	}))

	picks, err := svc.ListPicks(ctx, fx.comp.ID)
	require.NoError(t, err)
	require.Len(t, picks, 2)
	assert.Equal(t, 1, picks[0].Rank)
	assert.Equal(t, s1.ID, picks[0].SubmissionID)
	assert.Equal(t, "低音处理最对味", picks[0].Comment)
	assert.Equal(t, 2, picks[1].Rank)

	// 再次提交整体替换旧榜单
	require.NoError(t, svc.RecordPicks(ctx, fx.comp.ID, []PickEntry{
		{SubmissionID: s3.ID, Comment: "改主意了"},
	}))
	picks, err = svc.ListPicks(ctx, fx.comp.ID)
	require.NoError(t, err)
	require.Len(t, picks, 1)
	assert.Equal(t, s3.ID, picks[0].SubmissionID)
	assert.Equal(t, 1, picks[0].Rank)
}

func TestRecordPicksRejections(t *testing.T) {
	fx, svc := newPickFixture(t, "picks_reject")
	ctx := context.Background()
	s1, s2, s3 := fx.finalists[0], fx.finalists[1], fx.finalists[2]

	// 未晋级作品
	err := svc.RecordPicks(ctx, fx.comp.ID, []PickEntry{{SubmissionID: fx.eliminated[0].ID}})
	var ineligibleErr *IneligibleSelectionError
	require.ErrorAs(t, err, &ineligibleErr)
	assert.Contains(t, ineligibleErr.Reason, "未晋级")

	// 同一作品重复
	err = svc.RecordPicks(ctx, fx.comp.ID, []PickEntry{
		{SubmissionID: s1.ID}, {SubmissionID: s1.ID},
	})
	require.ErrorAs(t, err, &ineligibleErr)
	assert.Contains(t, ineligibleErr.Reason, "重复")

	// 超过3条
	err = svc.RecordPicks(ctx, fx.comp.ID, []PickEntry{
		{SubmissionID: s1.ID}, {SubmissionID: s2.ID}, {SubmissionID: s3.ID}, {SubmissionID: fx.eliminated[0].ID},
	})
	require.Error(t, err)

	// 拒收路径不留半截榜单
	picks, err := svc.ListPicks(ctx, fx.comp.ID)
	require.NoError(t, err)
	assert.Empty(t, picks)
}

func TestRecordPicksWrongPhase(t *testing.T) {
	fx, svc := newPickFixture(t, "picks_phase")
	setStatus(t, svc.db, fx.comp.ID, model.StatusVotingRound1Open)

	err := svc.RecordPicks(context.Background(), fx.comp.ID, []PickEntry{
		{SubmissionID: fx.finalists[0].ID},
	})
	var phaseErr *InvalidPhaseTransitionError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, model.StatusVotingRound2Setup, phaseErr.Required)
}

func TestRecordPicksAllowedAfterCompletion(t *testing.T) {
	// 榜单在第二轮准备之后的任何主流程阶段都可提交（比赛结束后作者补交也有效）
	fx, svc := newPickFixture(t, "picks_completed")
	setStatus(t, svc.db, fx.comp.ID, model.StatusCompleted)

	require.NoError(t, svc.RecordPicks(context.Background(), fx.comp.ID, []PickEntry{
		{SubmissionID: fx.finalists[0].ID, Comment: "赛后补记"},
	}))
}
