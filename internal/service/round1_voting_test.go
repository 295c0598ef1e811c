package service

import (
	"context"
	"testing"

	"RemixVote/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ballotFixture 两组各三件作品，voter 1..3 在组1、voter 4..6 在组2，互评对方组
type ballotFixture struct {
	comp   *model.Competition
	group1 []*model.Submission
	group2 []*model.Submission
}

func newBallotFixture(t *testing.T, dbName string) (*ballotFixture, *VotingService) {
	t.Helper()
	db := newTestDB(t, dbName)
	comp := seedCompetition(t, db, model.StatusVotingRound1Open, 3)

	f := &ballotFixture{comp: comp}
	for u := uint64(1); u <= 3; u++ {
		sub := seedSubmission(t, db, comp.ID, u)
		seedGroupRow(t, db, comp.ID, sub.ID, 1)
		seedAssignment(t, db, comp.ID, u, 1, 2, false)
		f.group1 = append(f.group1, sub)
	}
	for u := uint64(4); u <= 6; u++ {
		sub := seedSubmission(t, db, comp.ID, u)
		seedGroupRow(t, db, comp.ID, sub.ID, 2)
		seedAssignment(t, db, comp.ID, u, 2, 1, false)
		f.group2 = append(f.group2, sub)
	}
	return f, NewVotingService(db, newTestLogger())
}

func TestGetAssignedSubmissions(t *testing.T) {
	f, svc := newBallotFixture(t, "ballot_assigned")

	// voter 1 被指派组2
	subs, err := svc.GetAssignedSubmissions(context.Background(), f.comp.ID, 1)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	for _, sub := range subs {
		assert.GreaterOrEqual(t, sub.UserID, uint64(4))
	}

	// 无评审任务返回空列表而非错误
	subs, err = svc.GetAssignedSubmissions(context.Background(), f.comp.ID, 999)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubmitBallotAccepted(t *testing.T) {
	f, svc := newBallotFixture(t, "ballot_accept")
	g2 := f.group2

	accepted, reason, err := svc.SubmitBallot(context.Background(), f.comp.ID, 1, g2[0].ID, g2[1].ID, g2[2].ID)
	require.NoError(t, err)
	assert.True(t, accepted, reason)

	// 三条流水，分值 3/2/1
	var votes []*model.SubmissionVote
	require.NoError(t, svc.db.Where("competition_id = ? AND voter_id = ?", f.comp.ID, 1).
		Order("rank ASC").Find(&votes).Error)
	require.Len(t, votes, 3)
	assert.Equal(t, 3, votes[0].Points)
	assert.Equal(t, g2[0].ID, votes[0].SubmissionID)
	assert.Equal(t, 2, votes[1].Points)
	assert.Equal(t, g2[1].ID, votes[1].SubmissionID)
	assert.Equal(t, 1, votes[2].Points)
	assert.Equal(t, g2[2].ID, votes[2].SubmissionID)
	for _, v := range votes {
		assert.Equal(t, 1, v.VotingRound)
	}

	var a model.Round1Assignment
	require.NoError(t, svc.db.Where("competition_id = ? AND voter_id = ?", f.comp.ID, 1).First(&a).Error)
	assert.True(t, a.HasVoted)
	assert.NotNil(t, a.VotingCompletedDate)
}

func TestSubmitBallotImmutableOnceAccepted(t *testing.T) {
	f, svc := newBallotFixture(t, "ballot_immutable")
	g2 := f.group2

	accepted, _, err := svc.SubmitBallot(context.Background(), f.comp.ID, 1, g2[0].ID, g2[1].ID, g2[2].ID)
	require.NoError(t, err)
	require.True(t, accepted)

	// 二次提交（换名次）被拒，且不产生新的流水
	accepted, reason, err := svc.SubmitBallot(context.Background(), f.comp.ID, 1, g2[2].ID, g2[1].ID, g2[0].ID)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Contains(t, reason, "不可修改")

	var count int64
	require.NoError(t, svc.db.Model(&model.SubmissionVote{}).
		Where("competition_id = ? AND voter_id = ?", f.comp.ID, 1).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestSubmitBallotRejections(t *testing.T) {
	f, svc := newBallotFixture(t, "ballot_reject")
	g1, g2 := f.group1, f.group2

	cases := []struct {
		name    string
		voterID uint64
		ids     [3]uint64
		reason  string
	}{
		{"名次作品重复", 1, [3]uint64{g2[0].ID, g2[0].ID, g2[1].ID}, "不同作品"},
		{"无评审任务", 999, [3]uint64{g2[0].ID, g2[1].ID, g2[2].ID}, "没有评审任务"},
		{"包含非被评组作品", 1, [3]uint64{g2[0].ID, g2[1].ID, g1[1].ID}, "非被评组"},
		{"投自己所在组", 1, [3]uint64{g1[0].ID, g1[1].ID, g1[2].ID}, "非被评组"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			accepted, reason, err := svc.SubmitBallot(context.Background(),
				f.comp.ID, tc.voterID, tc.ids[0], tc.ids[1], tc.ids[2])
			require.NoError(t, err)
			assert.False(t, accepted)
			assert.Contains(t, reason, tc.reason)
		})
	}

	// 拒收路径不落任何流水
	var count int64
	require.NoError(t, svc.db.Model(&model.SubmissionVote{}).
		Where("competition_id = ?", f.comp.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitBallotVotingClosed(t *testing.T) {
	f, svc := newBallotFixture(t, "ballot_closed")
	setStatus(t, svc.db, f.comp.ID, model.StatusVotingRound1Tallying)

	accepted, reason, err := svc.SubmitBallot(context.Background(),
		f.comp.ID, 1, f.group2[0].ID, f.group2[1].ID, f.group2[2].ID)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Contains(t, reason, "未开放")
}
