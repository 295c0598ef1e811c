package model

import (
	"time"
)

// Competition 混音比赛主表
type Competition struct {
	ID                     uint64            `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	CompetitionUUID        string            `gorm:"column:competition_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一ID"`
	Title                  string            `gorm:"column:title;type:varchar(256);not null;comment:比赛标题"`
	Status                 CompetitionStatus `gorm:"column:status;type:int;default:0;comment:状态机枚举值"`
	Round1AdvancementCount int               `gorm:"column:round1_advancement_count;type:int;default:3;comment:第一轮每组晋级名额"`
	CreatedAt              time.Time         `gorm:"column:created_at;type:timestamp;autoCreateTime;comment:创建时间"`
	UpdatedAt              time.Time         `gorm:"column:updated_at;type:timestamp;autoUpdateTime;comment:更新时间"`
}

// Submission 参赛作品表（每用户每场比赛一件作品，分组算法依赖该假设）
type Submission struct {
	ID                        uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	SubmissionUUID            string    `gorm:"column:submission_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一ID"`
	CompetitionID             uint64    `gorm:"column:competition_id;type:bigint;not null;index;comment:所属比赛ID"`
	UserID                    uint64    `gorm:"column:user_id;type:bigint;not null;comment:投稿用户ID"`
	Title                     string    `gorm:"column:title;type:varchar(256);not null;comment:作品标题"`
	IsDisqualified            bool      `gorm:"column:is_disqualified;type:boolean;default:false;comment:是否被取消资格"`
	IsEligibleForRound1Voting bool      `gorm:"column:is_eligible_for_round1_voting;type:boolean;default:true;comment:是否具备第一轮参评资格"`
	IsEligibleForRound2Voting bool      `gorm:"column:is_eligible_for_round2_voting;type:boolean;default:false;comment:作品所属用户是否具备第二轮投票资格（计票阶段派生）"`
	Round1Score               int       `gorm:"column:round1_score;type:int;default:0;comment:第一轮总得分（从投票流水全量重算）"`
	Round2Score               int       `gorm:"column:round2_score;type:int;default:0;comment:第二轮总得分"`
	FinalScore                int       `gorm:"column:final_score;type:int;default:0;comment:最终得分"`
	AdvancedToRound2          bool      `gorm:"column:advanced_to_round2;type:boolean;default:false;comment:是否晋级第二轮"`
	IsWinner                  bool      `gorm:"column:is_winner;type:boolean;default:false;comment:是否冠军"`
	FinalRank                 *int      `gorm:"column:final_rank;type:int;comment:最终名次（未定为空）"`
	CreatedAt                 time.Time `gorm:"column:created_at;type:timestamp;autoCreateTime;comment:创建时间"`
	UpdatedAt                 time.Time `gorm:"column:updated_at;type:timestamp;autoUpdateTime;comment:更新时间"`
}

func (Competition) TableName() string { return "competitions" }
func (Submission) TableName() string  { return "submissions" }
