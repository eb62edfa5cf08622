package service

import (
	"time"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// EnvFactory builds the per-evaluation context for schedule math. It pins
// the clock (tests inject a fixed one) and the deployment's default
// timezone; a schedule flagged UseUTCAsDefaultTimezone overrides the latter.
type EnvFactory struct {
	Clock      scheduling.Clock
	DefaultLoc *time.Location
}

func NewEnvFactory(clock scheduling.Clock, defaultLoc *time.Location) EnvFactory {
	if clock == nil {
		clock = scheduling.SystemClock{}
	}
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return EnvFactory{Clock: clock, DefaultLoc: defaultLoc}
}

// For builds a fresh Env for one evaluation of the given schedule.
func (f EnvFactory) For(s *scheduling.StoredSchedule, c scheduling.Case) scheduling.Env {
	loc := f.DefaultLoc
	if s != nil && s.Kind == scheduling.KindTimed && s.Timed != nil && s.Timed.UseUTCAsDefaultTimezone {
		loc = time.UTC
	}
	return scheduling.Env{Clock: f.Clock, Location: loc, Case: c}
}
