package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rentcar-backend/internal/config"
	"rentcar-backend/internal/jobs"
)

func TestNewScheduler_RegistersJobs(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scheduler.ReleaseStalePendingBookings = "0 */5 * * * *"

	s := NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg))
	assert.True(t, s.IsRunning())
	assert.Len(t, s.cron.Entries(), 1)
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scheduler.ReleaseStalePendingBookings = "every five minutes"

	s := NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg))
	assert.False(t, s.IsRunning())
}
