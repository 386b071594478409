// Package jobs schedules the recurring passes of the pipeline: monitoring
// the market for every active profile, rescoring competitors and generating
// insights.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/riddle022/farmavision/pkg/insights"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/monitor"
	"github.com/riddle022/farmavision/pkg/scoring"
	"github.com/riddle022/farmavision/pkg/store"
)

// Config carries the cron expressions of the scheduled jobs. Empty fields
// fall back to the defaults.
type Config struct {
	MonitorSchedule  string
	ScoringSchedule  string
	InsightsSchedule string
}

const (
	defaultMonitorSchedule  = "0 */6 * * *" // every 6 hours
	defaultScoringSchedule  = "0 3 * * *"   // daily at 3 AM
	defaultInsightsSchedule = "30 3 * * *"  // daily at 3:30 AM, after scoring
)

// CronManager owns the scheduler and the jobs it runs.
type CronManager struct {
	cron     *cron.Cron
	store    *store.Store
	monitor  *monitor.Service
	scoring  *scoring.Service
	insights *insights.Service
	log      logger.Logger
	cfg      Config
}

// NewCronManager creates the scheduler. insights may be nil when no
// generator is configured; the insight job is skipped then.
func NewCronManager(st *store.Store, mon *monitor.Service, sc *scoring.Service, ins *insights.Service, log logger.Logger, cfg Config) *CronManager {
	if cfg.MonitorSchedule == "" {
		cfg.MonitorSchedule = defaultMonitorSchedule
	}
	if cfg.ScoringSchedule == "" {
		cfg.ScoringSchedule = defaultScoringSchedule
	}
	if cfg.InsightsSchedule == "" {
		cfg.InsightsSchedule = defaultInsightsSchedule
	}

	return &CronManager{
		cron:     cron.New(),
		store:    st,
		monitor:  mon,
		scoring:  sc,
		insights: ins,
		log:      log,
		cfg:      cfg,
	}
}

// SetupJobs registers every scheduled job.
func (cm *CronManager) SetupJobs() error {
	if _, err := cm.cron.AddFunc(cm.cfg.MonitorSchedule, cm.runMonitoring); err != nil {
		return fmt.Errorf("failed to schedule monitoring job: %w", err)
	}
	if _, err := cm.cron.AddFunc(cm.cfg.ScoringSchedule, cm.runScoring); err != nil {
		return fmt.Errorf("failed to schedule scoring job: %w", err)
	}
	if cm.insights != nil && cm.insights.Enabled() {
		if _, err := cm.cron.AddFunc(cm.cfg.InsightsSchedule, cm.runInsights); err != nil {
			return fmt.Errorf("failed to schedule insight job: %w", err)
		}
	}

	cm.log.Info("cron jobs configured",
		"monitor", cm.cfg.MonitorSchedule,
		"scoring", cm.cfg.ScoringSchedule,
		"insights", cm.cfg.InsightsSchedule,
		"insights_enabled", cm.insights != nil && cm.insights.Enabled())
	return nil
}

// runMonitoring runs one monitoring pass per active profile. Each pass draws
// from its own scheduler quota bucket so one noisy tenant cannot starve the
// rest of the fleet.
func (cm *CronManager) runMonitoring() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	cm.log.Info("scheduled monitoring pass started")

	profiles, err := cm.store.Profiles.ListActive(ctx)
	if err != nil {
		cm.log.Error("failed to list active profiles", "error", err)
		return
	}
	if len(profiles) == 0 {
		cm.log.Info("scheduled monitoring pass finished", "profiles", 0)
		return
	}

	failures := 0
	for _, profile := range profiles {
		if len(profile.Products) == 0 {
			continue
		}
		caller := fmt.Sprintf("scheduler:%d", profile.UserID)
		_, err := cm.monitor.RunBatch(ctx, profile.UserID, caller, monitor.BatchRequest{
			Lat:      profile.Latitude,
			Lon:      profile.Longitude,
			RadiusKM: profile.RadiusKM,
			Products: profile.Products,
		})
		if err != nil {
			failures++
			cm.log.Error("scheduled monitoring pass failed for profile",
				"user_id", profile.UserID, "profile_id", profile.ID, "error", err)
		}
	}

	cm.log.Info("scheduled monitoring pass finished",
		"profiles", len(profiles), "failures", failures)
}

func (cm *CronManager) runScoring() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cm.log.Info("scheduled scoring pass started")
	if err := cm.scoring.ScoreAll(ctx); err != nil {
		cm.log.Error("scheduled scoring pass failed", "error", err)
		return
	}
	cm.log.Info("scheduled scoring pass finished")
}

func (cm *CronManager) runInsights() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	cm.log.Info("scheduled insight generation started")
	if err := cm.insights.GenerateAll(ctx); err != nil {
		cm.log.Error("scheduled insight generation failed", "error", err)
		return
	}
	cm.log.Info("scheduled insight generation finished")
}

// Start launches the scheduler.
func (cm *CronManager) Start() {
	cm.log.Info("starting cron scheduler")
	cm.cron.Start()
}

// Stop halts the scheduler. Running jobs finish on their own.
func (cm *CronManager) Stop() {
	cm.log.Info("stopping cron scheduler")
	cm.cron.Stop()
}
