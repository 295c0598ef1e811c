package model

// CompetitionStatus 比赛状态机。主流程按数值递增单向推进，
// 100以上为游离态（取消/除名/关闭），不参与阶段比较
type CompetitionStatus int

const (
	StatusUpcoming                      CompetitionStatus = 0  // 未开始
	StatusOpenForSubmissions            CompetitionStatus = 1  // 投稿中
	StatusVotingRound1Setup             CompetitionStatus = 2  // 第一轮分组准备
	StatusVotingRound1Open              CompetitionStatus = 3  // 第一轮投票中
	StatusVotingRound1Tallying          CompetitionStatus = 4  // 第一轮计票中
	StatusVotingRound2Setup             CompetitionStatus = 5  // 第二轮准备
	StatusVotingRound2Open              CompetitionStatus = 6  // 第二轮投票中
	StatusVotingRound2Tallying          CompetitionStatus = 7  // 第二轮计票中
	StatusRequiresManualWinnerSelection CompetitionStatus = 8  // 完全平票，待人工裁决
	StatusCompleted                     CompetitionStatus = 9  // 已完成
	StatusArchived                      CompetitionStatus = 10 // 已归档

	StatusCancelled    CompetitionStatus = 100 // 已取消
	StatusDisqualified CompetitionStatus = 101 // 已除名
	StatusClosed       CompetitionStatus = 102 // 已关闭
)

var statusNames = map[CompetitionStatus]string{
	StatusUpcoming:                      "Upcoming",
	StatusOpenForSubmissions:            "OpenForSubmissions",
	StatusVotingRound1Setup:             "VotingRound1Setup",
	StatusVotingRound1Open:              "VotingRound1Open",
	StatusVotingRound1Tallying:          "VotingRound1Tallying",
	StatusVotingRound2Setup:             "VotingRound2Setup",
	StatusVotingRound2Open:              "VotingRound2Open",
	StatusVotingRound2Tallying:          "VotingRound2Tallying",
	StatusRequiresManualWinnerSelection: "RequiresManualWinnerSelection",
	StatusCompleted:                     "Completed",
	StatusArchived:                      "Archived",
	StatusCancelled:                     "Cancelled",
	StatusDisqualified:                  "Disqualified",
	StatusClosed:                        "Closed",
}

func (s CompetitionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// HasReached 比赛是否已到达（或越过）指定主流程阶段。游离态一律返回 false
func (s CompetitionStatus) HasReached(phase CompetitionStatus) bool {
	if s >= StatusCancelled {
		return false
	}
	return s >= phase
}
