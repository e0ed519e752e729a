package registry

import (
	"errors"
	"time"
)

var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrNegativeAmount = errors.New("point amount must not be negative")
)

// PointsPerLevel is the number of points between two levels.
const PointsPerLevel = 100

type Mood string

const (
	MoodJoyful      Mood = "joyful"
	MoodPositive    Mood = "positive"
	MoodNeutral     Mood = "neutral"
	MoodMelancholic Mood = "melancholic"
	MoodTroubled    Mood = "troubled"
)

// MoodFor maps an emotion score to its tier. Thresholds are checked top-down
// and the first match wins.
func MoodFor(score int64) Mood {
	switch {
	case score > 50:
		return MoodJoyful
	case score > 20:
		return MoodPositive
	case score > -20:
		return MoodNeutral
	case score > -50:
		return MoodMelancholic
	default:
		return MoodTroubled
	}
}

// LevelFor derives the level from a point total.
func LevelFor(points int64) int64 {
	return points/PointsPerLevel + 1
}

// UserRecord is one registered user. Level and Mood are derived fields and
// are only ever written by the registry.
type UserRecord struct {
	ID               string    `json:"id"`
	Handle           string    `json:"handle"`
	DisplayName      string    `json:"displayName"`
	JoinedAt         time.Time `json:"joinedAt"`
	LastSeenAt       time.Time `json:"lastSeenAt"`
	Points           int64     `json:"points"`
	Level            int64     `json:"level"`
	InteractionCount int64     `json:"interactionCount"`
	EmotionScore     int64     `json:"emotionScore"`
	Mood             Mood      `json:"mood"`
}

// PointsToNextLevel is how many points remain until the next level.
func (u UserRecord) PointsToNextLevel() int64 {
	return PointsPerLevel - u.Points%PointsPerLevel
}

// SystemState holds the bot-wide counters shown by /status.
type SystemState struct {
	CoreBeats   int64  `json:"coreBeats"`
	QuantumSync int64  `json:"quantumSync"`
	LightPower  int64  `json:"lightPower"`
	DarkPower   int64  `json:"darkPower"`
	TruthLevel  int64  `json:"truthLevel"`
	Mood        string `json:"mood"`
}

const (
	SystemMoodBalanced  = "balanced"
	SystemMoodEnergized = "energized"

	initialPower    = 1000
	powerBoost      = 500
	initialTruth    = 100
	minQuantumSync  = 100
	maxQuantumSync  = 1000
	documentVersion = 1
)

func defaultSystemState() SystemState {
	return SystemState{
		LightPower: initialPower,
		DarkPower:  initialPower,
		TruthLevel: initialTruth,
		Mood:       SystemMoodBalanced,
	}
}

// Snapshot is the read-only rollup used for status reports.
type Snapshot struct {
	TotalUsers    int         `json:"totalUsers"`
	TotalMessages int64       `json:"totalMessages"`
	FailedWrites  int64       `json:"failedWrites"`
	System        SystemState `json:"system"`
}

// Document is the full persisted form of the registry.
type Document struct {
	Version       int                   `json:"version"`
	SavedAt       time.Time             `json:"savedAt"`
	TotalMessages int64                 `json:"totalMessages"`
	System        SystemState           `json:"system"`
	Users         map[string]UserRecord `json:"users"`
}
