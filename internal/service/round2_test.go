package service

import (
	"context"
	"testing"
	"time"

	"RemixVote/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// round2Fixture 决赛圈场景：S1..S4 晋级，u10..u12 为被淘汰投稿人（各有一件未晋级作品）
type round2Fixture struct {
	comp       *model.Competition
	finalists  []*model.Submission
	eliminated []*model.Submission
}

func newRound2Fixture(t *testing.T, dbName string, status model.CompetitionStatus, finalistCount int) (*round2Fixture, *Round2Service) {
	t.Helper()
	db := newTestDB(t, dbName)
	comp := seedCompetition(t, db, status, 2)
	fx := &round2Fixture{comp: comp}

	for u := uint64(1); u <= uint64(finalistCount); u++ {
		sub := seedSubmission(t, db, comp.ID, u)
		require.NoError(t, db.Model(sub).Updates(map[string]interface{}{
			"advanced_to_round2":            true,
			"is_eligible_for_round2_voting": true,
		}).Error)
		fx.finalists = append(fx.finalists, getSubmission(t, db, sub.ID))
	}
	for u := uint64(10); u <= 12; u++ {
		sub := seedSubmission(t, db, comp.ID, u)
		require.NoError(t, db.Model(sub).Update("is_eligible_for_round2_voting", true).Error)
		fx.eliminated = append(fx.eliminated, getSubmission(t, db, sub.ID))
	}
	return fx, NewRound2Service(db, newTestLogger())
}

func TestSetupRound2(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_setup", model.StatusVotingRound2Setup, 3)

	count, err := svc.SetupRound2(context.Background(), fx.comp.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var comp model.Competition
	require.NoError(t, svc.db.First(&comp, fx.comp.ID).Error)
	assert.Equal(t, model.StatusVotingRound2Open, comp.Status)
}

func TestSetupRound2TooFewFinalists(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_setup_few", model.StatusVotingRound2Setup, 2)

	_, err := svc.SetupRound2(context.Background(), fx.comp.ID)
	var insufficientErr *InsufficientSubmissionsError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, 2, insufficientErr.Actual)
}

func TestSetupRound2WrongPhase(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_setup_phase", model.StatusVotingRound1Open, 3)

	_, err := svc.SetupRound2(context.Background(), fx.comp.ID)
	var phaseErr *InvalidPhaseTransitionError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, model.StatusVotingRound2Setup, phaseErr.Required)
}

func TestIsEligibleVoter(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_eligible", model.StatusVotingRound2Open, 3)
	ctx := context.Background()

	// 被淘汰投稿人有资格
	ok, err := svc.IsEligibleVoter(ctx, fx.comp.ID, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	// 决赛选手无资格
	ok, err = svc.IsEligibleVoter(ctx, fx.comp.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// 非投稿人无资格
	ok, err = svc.IsEligibleVoter(ctx, fx.comp.ID, 999)
	require.NoError(t, err)
	assert.False(t, ok)

	// 作品被取消资格者无资格
	require.NoError(t, svc.db.Model(&model.Submission{}).
		Where("competition_id = ? AND user_id = ?", fx.comp.ID, 11).
		Update("is_disqualified", true).Error)
	ok, err = svc.IsEligibleVoter(ctx, fx.comp.ID, 11)
	require.NoError(t, err)
	assert.False(t, ok)

	// 已投票者不再有资格
	accepted, _, err := svc.RecordVote(ctx, fx.comp.ID, 12, fx.finalists[0].ID)
	require.NoError(t, err)
	require.True(t, accepted)
	ok, err = svc.IsEligibleVoter(ctx, fx.comp.ID, 12)
	require.NoError(t, err)
	assert.False(t, ok)

	// 投票未开放时一律无资格
	setStatus(t, svc.db, fx.comp.ID, model.StatusVotingRound2Tallying)
	ok, err = svc.IsEligibleVoter(ctx, fx.comp.ID, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordVoteRejections(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_vote_reject", model.StatusVotingRound2Open, 3)
	ctx := context.Background()

	// 决赛选手不可投票
	accepted, reason, err := svc.RecordVote(ctx, fx.comp.ID, 1, fx.finalists[1].ID)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Contains(t, reason, "决赛选手")

	// 投给未晋级作品被拒
	accepted, reason, err = svc.RecordVote(ctx, fx.comp.ID, 10, fx.eliminated[1].ID)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Contains(t, reason, "非决赛圈")

	// 单票与老版三档通道共用防重判定
	accepted, _, err = svc.RecordVote(ctx, fx.comp.ID, 10, fx.finalists[0].ID)
	require.NoError(t, err)
	require.True(t, accepted)
	accepted, reason, err = svc.RecordRankedVotes(ctx, fx.comp.ID, 10,
		fx.finalists[0].ID, fx.finalists[1].ID, fx.finalists[2].ID)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Contains(t, reason, "已投过票")

	var count int64
	require.NoError(t, svc.db.Model(&model.SubmissionVote{}).
		Where("competition_id = ? AND voter_id = ? AND voting_round = ?", fx.comp.ID, 10, 2).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

// 防重的数据库级兜底：同一投票人同一轮同一名次的第二条流水在落库时必然唯一键冲突，
// 即使两个并发请求都通过了计数检查，也只有一条能提交，计票不会给单人记两票
func TestRound2VoteLedgerRejectsDuplicateRows(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_vote_unique", model.StatusVotingRound2Open, 3)
	ctx := context.Background()
	s1 := fx.finalists[0]

	first := &model.SubmissionVote{
		CompetitionID: fx.comp.ID,
		SubmissionID:  s1.ID,
		VoterID:       10,
		Rank:          1,
		Points:        1,
		VotingRound:   2,
		VoteTime:      time.Now(),
	}
	require.NoError(t, svc.db.Create(first).Error)

	duplicate := &model.SubmissionVote{
		CompetitionID: fx.comp.ID,
		SubmissionID:  s1.ID,
		VoterID:       10,
		Rank:          1,
		Points:        1,
		VotingRound:   2,
		VoteTime:      time.Now(),
	}
	err := svc.db.Create(duplicate).Error
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	var count int64
	require.NoError(t, svc.db.Model(&model.SubmissionVote{}).
		Where("competition_id = ? AND voter_id = ? AND voting_round = ?", fx.comp.ID, 10, 2).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// 计票只见一票：该投票人只给冠军贡献1分
	setStatus(t, svc.db, fx.comp.ID, model.StatusVotingRound2Tallying)
	result, err := svc.TallyRound2(ctx, fx.comp.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Winner)
	assert.Equal(t, 1, getSubmission(t, svc.db, s1.ID).Round2Score)

	// 不同轮次/不同名次不受唯一键影响（第一轮三行选票仍合法）
	require.NoError(t, svc.db.Create(&model.SubmissionVote{
		CompetitionID: fx.comp.ID, SubmissionID: s1.ID, VoterID: 10,
		Rank: 1, Points: 3, VotingRound: 1, VoteTime: time.Now(),
	}).Error)
	require.NoError(t, svc.db.Create(&model.SubmissionVote{
		CompetitionID: fx.comp.ID, SubmissionID: fx.finalists[1].ID, VoterID: 10,
		Rank: 2, Points: 2, VotingRound: 1, VoteTime: time.Now(),
	}).Error)
}

func TestTallyRound2DecisiveWinner(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_tally_winner", model.StatusVotingRound2Open, 3)
	ctx := context.Background()
	s1, s2 := fx.finalists[0], fx.finalists[1]

	for _, vote := range []struct {
		voterID uint64
		subID   uint64
	}{
		{10, s1.ID}, {11, s1.ID}, {12, s2.ID},
	} {
		accepted, reason, err := svc.RecordVote(ctx, fx.comp.ID, vote.voterID, vote.subID)
		require.NoError(t, err)
		require.True(t, accepted, reason)
	}

	setStatus(t, svc.db, fx.comp.ID, model.StatusVotingRound2Tallying)
	result, err := svc.TallyRound2(ctx, fx.comp.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Winner)
	assert.False(t, result.Tie)
	assert.Equal(t, s1.ID, result.Winner.ID)

	winner := getSubmission(t, svc.db, s1.ID)
	assert.True(t, winner.IsWinner)
	assert.Equal(t, 2, winner.Round2Score)
	assert.Equal(t, 2, winner.FinalScore)
	require.NotNil(t, winner.FinalRank)
	assert.Equal(t, 1, *winner.FinalRank)

	runnerUp := getSubmission(t, svc.db, s2.ID)
	assert.False(t, runnerUp.IsWinner)
	require.NotNil(t, runnerUp.FinalRank)
	assert.Equal(t, 2, *runnerUp.FinalRank)

	var comp model.Competition
	require.NoError(t, svc.db.First(&comp, fx.comp.ID).Error)
	assert.Equal(t, model.StatusCompleted, comp.Status)

	var run model.TallyRun
	require.NoError(t, svc.db.Where("competition_id = ? AND round = ?", fx.comp.ID, 2).First(&run).Error)
	assert.True(t, run.Succeeded)
}

func TestTallyRound2FirstPlaceVotesBreakTie(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_tally_firstbreak", model.StatusVotingRound2Open, 4)
	ctx := context.Background()
	s1, s2, s3, s4 := fx.finalists[0], fx.finalists[1], fx.finalists[2], fx.finalists[3]

	// u10: S1/S2/S3，u11: S4/S2/S1
	// 票面 S1=4(1张一名票) S2=4(0张) S3=1 S4=3，S1 靠一名票数胜出
	accepted, reason, err := svc.RecordRankedVotes(ctx, fx.comp.ID, 10, s1.ID, s2.ID, s3.ID)
	require.NoError(t, err)
	require.True(t, accepted, reason)
	accepted, reason, err = svc.RecordRankedVotes(ctx, fx.comp.ID, 11, s4.ID, s2.ID, s1.ID)
	require.NoError(t, err)
	require.True(t, accepted, reason)

	setStatus(t, svc.db, fx.comp.ID, model.StatusVotingRound2Tallying)
	result, err := svc.TallyRound2(ctx, fx.comp.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Winner)
	assert.Equal(t, s1.ID, result.Winner.ID)

	var comp model.Competition
	require.NoError(t, svc.db.First(&comp, fx.comp.ID).Error)
	assert.Equal(t, model.StatusCompleted, comp.Status)
}

func TestTallyRound2FullTieGoesManual(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_tally_tie", model.StatusVotingRound2Open, 3)
	ctx := context.Background()
	s1, s2, s3 := fx.finalists[0], fx.finalists[1], fx.finalists[2]

	// u10: S1/S2/S3，u11: S3/S2/S1 -> 三件全4分，S1/S3 各1张一名票仍并列
	accepted, _, err := svc.RecordRankedVotes(ctx, fx.comp.ID, 10, s1.ID, s2.ID, s3.ID)
	require.NoError(t, err)
	require.True(t, accepted)
	accepted, _, err = svc.RecordRankedVotes(ctx, fx.comp.ID, 11, s3.ID, s2.ID, s1.ID)
	require.NoError(t, err)
	require.True(t, accepted)

	setStatus(t, svc.db, fx.comp.ID, model.StatusVotingRound2Tallying)
	result, err := svc.TallyRound2(ctx, fx.comp.ID)
	require.NoError(t, err)
	assert.Nil(t, result.Winner)
	assert.True(t, result.Tie)
	assert.ElementsMatch(t, []uint64{s1.ID, s3.ID}, result.TiedSubmissionIDs)

	// 得分已落库但不定名次，转人工裁决
	assert.Equal(t, 4, getSubmission(t, svc.db, s1.ID).Round2Score)
	assert.Nil(t, getSubmission(t, svc.db, s1.ID).FinalRank)

	var comp model.Competition
	require.NoError(t, svc.db.First(&comp, fx.comp.ID).Error)
	assert.Equal(t, model.StatusRequiresManualWinnerSelection, comp.Status)
}

func TestSetWinnerManualSelection(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_setwinner", model.StatusRequiresManualWinnerSelection, 3)
	ctx := context.Background()
	s1 := fx.finalists[0]

	require.NoError(t, svc.SetWinner(ctx, fx.comp.ID, s1.ID))

	winner := getSubmission(t, svc.db, s1.ID)
	assert.True(t, winner.IsWinner)
	require.NotNil(t, winner.FinalRank)
	assert.Equal(t, 1, *winner.FinalRank)

	var comp model.Competition
	require.NoError(t, svc.db.First(&comp, fx.comp.ID).Error)
	assert.Equal(t, model.StatusCompleted, comp.Status)
}

func TestSetWinnerRejectsIneligibleSubmission(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_setwinner_bad", model.StatusRequiresManualWinnerSelection, 3)
	ctx := context.Background()

	// 未晋级作品不可选
	err := svc.SetWinner(ctx, fx.comp.ID, fx.eliminated[0].ID)
	var ineligibleErr *IneligibleSelectionError
	require.ErrorAs(t, err, &ineligibleErr)
	assert.Equal(t, fx.eliminated[0].ID, ineligibleErr.SubmissionID)

	// 不存在的作品
	err = svc.SetWinner(ctx, fx.comp.ID, 99999)
	require.ErrorAs(t, err, &ineligibleErr)
}

func TestSetWinnerWrongPhase(t *testing.T) {
	fx, svc := newRound2Fixture(t, "r2_setwinner_phase", model.StatusVotingRound2Open, 3)

	err := svc.SetWinner(context.Background(), fx.comp.ID, fx.finalists[0].ID)
	var phaseErr *InvalidPhaseTransitionError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, model.StatusVotingRound2Open, phaseErr.Current)
}
