package service

import (
	"fmt"
	"io"
	"math/rand"
	"testing"
	"time"

	"RemixVote/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试用独立命名的共享内存库，互不串库
func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Competition{},
		&model.Submission{},
		&model.SubmissionGroup{},
		&model.Round1Assignment{},
		&model.SubmissionVote{},
		&model.SongCreatorPick{},
		&model.TallyRun{},
	))
	return db
}

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func seedCompetition(t *testing.T, db *gorm.DB, status model.CompetitionStatus, quota int) *model.Competition {
	t.Helper()
	c := &model.Competition{
		CompetitionUUID:        uuid.NewString(),
		Title:                  "测试混音比赛",
		Status:                 status,
		Round1AdvancementCount: quota,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func seedSubmission(t *testing.T, db *gorm.DB, competitionID, userID uint64) *model.Submission {
	t.Helper()
	s := &model.Submission{
		SubmissionUUID:            uuid.NewString(),
		CompetitionID:             competitionID,
		UserID:                    userID,
		Title:                     fmt.Sprintf("作品-%d", userID),
		IsEligibleForRound1Voting: true,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

func seedGroupRow(t *testing.T, db *gorm.DB, competitionID, submissionID uint64, groupNumber int) {
	t.Helper()
	require.NoError(t, db.Create(&model.SubmissionGroup{
		CompetitionID: competitionID,
		SubmissionID:  submissionID,
		GroupNumber:   groupNumber,
	}).Error)
}

func seedAssignment(t *testing.T, db *gorm.DB, competitionID, voterID uint64, voterGroup, assignedGroup int, hasVoted bool) {
	t.Helper()
	a := &model.Round1Assignment{
		CompetitionID:       competitionID,
		VoterID:             voterID,
		VoterGroupNumber:    voterGroup,
		AssignedGroupNumber: assignedGroup,
		HasVoted:            hasVoted,
	}
	if hasVoted {
		now := time.Now()
		a.VotingCompletedDate = &now
	}
	require.NoError(t, db.Create(a).Error)
}

func seedVote(t *testing.T, db *gorm.DB, competitionID, submissionID, voterID uint64, rank, points, round int) {
	t.Helper()
	require.NoError(t, db.Create(&model.SubmissionVote{
		CompetitionID: competitionID,
		SubmissionID:  submissionID,
		VoterID:       voterID,
		Rank:          rank,
		Points:        points,
		VotingRound:   round,
		VoteTime:      time.Now(),
	}).Error)
}

// seedRanked1 一张第一轮选票的三条流水（3/2/1分）
func seedRanked1(t *testing.T, db *gorm.DB, competitionID, voterID, firstID, secondID, thirdID uint64) {
	t.Helper()
	seedVote(t, db, competitionID, firstID, voterID, 1, 3, 1)
	seedVote(t, db, competitionID, secondID, voterID, 2, 2, 1)
	seedVote(t, db, competitionID, thirdID, voterID, 3, 1, 1)
}

func setStatus(t *testing.T, db *gorm.DB, competitionID uint64, status model.CompetitionStatus) {
	t.Helper()
	require.NoError(t, db.Model(&model.Competition{}).
		Where("id = ?", competitionID).
		Update("status", status).Error)
}

func getSubmission(t *testing.T, db *gorm.DB, id uint64) *model.Submission {
	t.Helper()
	var s model.Submission
	require.NoError(t, db.First(&s, id).Error)
	return &s
}
