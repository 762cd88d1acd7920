package protocol

// MatchMode selects the session ruleset.
type MatchMode byte

const (
	ModeSolo MatchMode = 1
	ModeCoop MatchMode = 2
	ModePvP  MatchMode = 3
)

func (m MatchMode) String() string {
	switch m {
	case ModeSolo:
		return "Solo"
	case ModeCoop:
		return "Coop"
	case ModePvP:
		return "PvP"
	}
	return "Unknown"
}

// MatchResult closes a match.
type MatchResult byte

const (
	ResultVictory MatchResult = 1
	ResultDefeat  MatchResult = 2
	ResultAborted MatchResult = 3
)

func (r MatchResult) String() string {
	switch r {
	case ResultVictory:
		return "Victory"
	case ResultDefeat:
		return "Defeat"
	case ResultAborted:
		return "Aborted"
	}
	return "Unknown"
}

// DestroyReason explains an EntityDestroy.
type DestroyReason byte

const (
	DestroyKilled    DestroyReason = 1
	DestroyLeaked    DestroyReason = 2
	DestroySold      DestroyReason = 3
	DestroyExpired   DestroyReason = 4
	DestroyMatchEnd  DestroyReason = 5
	DestroyCollected DestroyReason = 6
)

// LeaveReason explains a PlayerLeft.
type LeaveReason byte

const (
	LeaveDisconnect LeaveReason = 1
	LeaveTimeout    LeaveReason = 2
	LeaveQuit       LeaveReason = 3
)

// ChatChannel scopes a chat message.
type ChatChannel byte

const (
	ChatAll    ChatChannel = 1
	ChatTeam   ChatChannel = 2
	ChatSystem ChatChannel = 3
)
