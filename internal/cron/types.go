package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"
)

var ErrJobNotFound = errors.New("job not found")

// Schedule kinds.
const (
	KindCron  = "cron"  // six-field cron expression with seconds
	KindEvery = "every" // fixed interval in EveryMs
	KindAt    = "at"    // one shot at AtMs
)

// Job actions understood by the gateway.
const (
	ActionBackup    = "backup"
	ActionBroadcast = "broadcast"
)

type Schedule struct {
	Kind    string `json:"kind"`
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	AtMs    int64  `json:"atMs,omitempty"`
}

type Payload struct {
	Action string `json:"action"`
	// Message overrides the default broadcast text.
	Message string `json:"message,omitempty"`
	// Channel is the transport a broadcast goes out on.
	Channel string `json:"channel,omitempty"`
}

type JobState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

type CronJob struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun,omitempty"`
}

func NewCronJob(name string, schedule Schedule, payload Payload) CronJob {
	return CronJob{
		ID:          uuid.NewString(),
		Name:        name,
		Enabled:     true,
		Schedule:    schedule,
		Payload:     payload,
		CreatedAtMs: time.Now().UnixMilli(),
	}
}

var cronParser = rcron.NewParser(rcron.Second | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)

// Validate checks the schedule and action before a job is stored.
func Validate(schedule Schedule, payload Payload) error {
	switch schedule.Kind {
	case KindCron:
		if _, err := cronParser.Parse(schedule.Expr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", schedule.Expr, err)
		}
	case KindEvery:
		if schedule.EveryMs < 1000 {
			return fmt.Errorf("every schedule needs everyMs >= 1000, got %d", schedule.EveryMs)
		}
	case KindAt:
		if schedule.AtMs <= 0 {
			return fmt.Errorf("at schedule needs a positive atMs")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", schedule.Kind)
	}

	switch payload.Action {
	case ActionBackup:
	case ActionBroadcast:
		if payload.Channel == "" {
			return fmt.Errorf("broadcast job needs a channel")
		}
	default:
		return fmt.Errorf("unknown job action %q", payload.Action)
	}
	return nil
}
