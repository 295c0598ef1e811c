package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetGroupStandings(t *testing.T) {
	fx, tallySvc := newTallyFixture(t, "standings_basic")
	_, err := tallySvc.TallyRound1(context.Background(), fx.comp.ID)
	require.NoError(t, err)

	svc := NewStandingsService(tallySvc.db, newTestLogger())
	standings, err := svc.GetGroupStandings(context.Background(), fx.comp.ID)
	require.NoError(t, err)
	require.Len(t, standings, 2)

	// 组按组号升序，组内按名次升序，未排名（被取消资格）的垫底
	g1 := standings[0]
	assert.Equal(t, 1, g1.GroupNumber)
	require.Len(t, g1.Entries, 5)
	assert.Equal(t, fx.b.ID, g1.Entries[0].SubmissionID)
	assert.Equal(t, 7, g1.Entries[0].TotalPoints)
	assert.True(t, g1.Entries[0].AdvancedToRound2)
	assert.Equal(t, fx.e.ID, g1.Entries[4].SubmissionID)
	assert.Nil(t, g1.Entries[4].RankInGroup)
	assert.True(t, g1.Entries[4].IsDisqualified)

	g2 := standings[1]
	assert.Equal(t, 2, g2.GroupNumber)
	require.Len(t, g2.Entries, 3)
	assert.Equal(t, fx.f.ID, g2.Entries[0].SubmissionID)
	assert.Equal(t, "作品-6", g2.Entries[0].Title)
}

func TestGetGroupStandingsBeforeTally(t *testing.T) {
	fx, tallySvc := newTallyFixture(t, "standings_pretally")

	svc := NewStandingsService(tallySvc.db, newTestLogger())
	standings, err := svc.GetGroupStandings(context.Background(), fx.comp.ID)
	require.NoError(t, err)
	require.Len(t, standings, 2)

	// 计票前缓存字段为零值，名次为空
	for _, group := range standings {
		for _, entry := range group.Entries {
			assert.Zero(t, entry.TotalPoints)
			assert.Nil(t, entry.RankInGroup)
		}
	}
}

func TestGetGroupStandingsCompetitionNotFound(t *testing.T) {
	db := newTestDB(t, "standings_notfound")
	svc := NewStandingsService(db, newTestLogger())
	_, err := svc.GetGroupStandings(context.Background(), 777)
	assert.ErrorIs(t, err, ErrCompetitionNotFound)
}
