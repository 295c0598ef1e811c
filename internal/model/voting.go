package model

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionGroup 作品分组表（分组引擎一次性生成，计票重跑时整体清空重建）
// 缓存字段 total_points / *_place_votes / rank_in_group 均由计票管线从投票流水全量重算
type SubmissionGroup struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	CompetitionID    uint64    `gorm:"column:competition_id;type:bigint;not null;uniqueIndex:uk_group_comp_submission;comment:所属比赛ID"`
	SubmissionID     uint64    `gorm:"column:submission_id;type:bigint;not null;uniqueIndex:uk_group_comp_submission;comment:作品ID"`
	GroupNumber      int       `gorm:"column:group_number;type:int;not null;index;comment:组号（从1起）"`
	TotalPoints      int       `gorm:"column:total_points;type:int;default:0;comment:组内总得分"`
	FirstPlaceVotes  int       `gorm:"column:first_place_votes;type:int;default:0;comment:第一名票数"`
	SecondPlaceVotes int       `gorm:"column:second_place_votes;type:int;default:0;comment:第二名票数"`
	ThirdPlaceVotes  int       `gorm:"column:third_place_votes;type:int;default:0;comment:第三名票数"`
	RankInGroup      *int      `gorm:"column:rank_in_group;type:int;comment:组内名次（未计票为空）"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamp;autoCreateTime;comment:创建时间"`
	UpdatedAt        time.Time `gorm:"column:updated_at;type:timestamp;autoUpdateTime;comment:更新时间"`
}

// Round1Assignment 第一轮评审任务表：每位有资格的投票人一行
// 不变量：assigned_group_number != voter_group_number（单组退化场景除外，发生时记警告日志）
type Round1Assignment struct {
	ID                  uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	CompetitionID       uint64     `gorm:"column:competition_id;type:bigint;not null;uniqueIndex:uk_assignment_comp_voter;comment:所属比赛ID"`
	VoterID             uint64     `gorm:"column:voter_id;type:bigint;not null;uniqueIndex:uk_assignment_comp_voter;comment:投票人用户ID"`
	VoterGroupNumber    int        `gorm:"column:voter_group_number;type:int;not null;comment:投票人自己作品所在组号"`
	AssignedGroupNumber int        `gorm:"column:assigned_group_number;type:int;not null;comment:被指派评审的组号"`
	HasVoted            bool       `gorm:"column:has_voted;type:boolean;default:false;comment:是否已提交选票"`
	VotingCompletedDate *time.Time `gorm:"column:voting_completed_date;type:timestamp;comment:提交选票时间"`
	CreatedAt           time.Time  `gorm:"column:created_at;type:timestamp;autoCreateTime;comment:创建时间"`
}

// SubmissionVote 投票流水表（只追加，正常流程不更新不删除，是一切派生得分的唯一事实来源）。
// 唯一索引 uk_vote_comp_voter_round_rank 是防重复投票的数据库级兜底：
// 同一投票人同一轮同一名次只允许一行，并发重复提交在提交事务时必然冲突
type SubmissionVote struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	CompetitionID uint64    `gorm:"column:competition_id;type:bigint;not null;index:idx_vote_comp_round;uniqueIndex:uk_vote_comp_voter_round_rank;comment:所属比赛ID"`
	SubmissionID  uint64    `gorm:"column:submission_id;type:bigint;not null;index;comment:被投作品ID"`
	VoterID       uint64    `gorm:"column:voter_id;type:bigint;not null;uniqueIndex:uk_vote_comp_voter_round_rank;comment:投票人用户ID"`
	Rank          int       `gorm:"column:rank;type:int;not null;uniqueIndex:uk_vote_comp_voter_round_rank;comment:名次（1/2/3）"`
	Points        int       `gorm:"column:points;type:int;not null;comment:该票分值"`
	VotingRound   int       `gorm:"column:voting_round;type:int;not null;index:idx_vote_comp_round;uniqueIndex:uk_vote_comp_voter_round_rank;comment:投票轮次（1/2）"`
	VoteTime      time.Time `gorm:"column:vote_time;type:timestamp;comment:投票时间"`
}

// SongCreatorPick 原曲作者心水榜（独立旁路榜单，不参与计票，每次整体替换）
type SongCreatorPick struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	CompetitionID uint64    `gorm:"column:competition_id;type:bigint;not null;index;comment:所属比赛ID"`
	SubmissionID  uint64    `gorm:"column:submission_id;type:bigint;not null;comment:作品ID"`
	Rank          int       `gorm:"column:rank;type:int;not null;comment:心水名次（1..3）"`
	Comment       string    `gorm:"column:comment;type:varchar(512);comment:作者评语"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamp;autoCreateTime;comment:创建时间"`
}

// TallyRun 计票管线审计记录：每次管线调用一行，report 存各阶段统计与校验结论
type TallyRun struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	CompetitionID uint64         `gorm:"column:competition_id;type:bigint;not null;index;comment:所属比赛ID"`
	Round         int            `gorm:"column:round;type:int;not null;comment:计票轮次（1/2）"`
	StartedAt     time.Time      `gorm:"column:started_at;type:timestamp;not null;comment:开始时间"`
	FinishedAt    time.Time      `gorm:"column:finished_at;type:timestamp;not null;comment:结束时间"`
	AdvancedCount int            `gorm:"column:advanced_count;type:int;default:0;comment:晋级/胜出作品数"`
	Succeeded     bool           `gorm:"column:succeeded;type:boolean;default:false;comment:是否成功提交"`
	Report        datatypes.JSON `gorm:"column:report;type:jsonb;comment:各阶段统计与校验报告"`
}

func (SubmissionGroup) TableName() string  { return "submission_groups" }
func (Round1Assignment) TableName() string { return "round1_assignments" }
func (SubmissionVote) TableName() string   { return "submission_votes" }
func (SongCreatorPick) TableName() string  { return "song_creator_picks" }
func (TallyRun) TableName() string         { return "tally_runs" }
