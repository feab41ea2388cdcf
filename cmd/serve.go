package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"DhammaFM/config"
	"DhammaFM/db"
	"DhammaFM/engine"
	"DhammaFM/feed"
	"DhammaFM/logger"
	"DhammaFM/model"
	"DhammaFM/player"
	"DhammaFM/repository"
	"DhammaFM/scheduler"
	"DhammaFM/server"
	"DhammaFM/store"
	"DhammaFM/trigger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the DhammaFM daemon",
	Long:  `Starts the playback coordinator, schedule alarms and the HTTP control API.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})

	if err := db.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(
		&model.Track{}, &model.TrackProgress{}, &model.LocalCopy{}, &model.Schedule{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	tracks := repository.NewGormTrackRepository(db.DB)
	copies := repository.NewGormLocalCopyRepository(db.DB)
	schedules := repository.NewGormScheduleRepository(db.DB)

	content, err := store.NewContentStore(cfg, copies)
	if err != nil {
		log.Fatalf("Failed to initialize content store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := content.Watch(ctx); err != nil {
		logger.Warn("content directory watcher unavailable", logger.ErrorField(err))
	}

	feedSvc := feed.NewService(cfg, tracks)

	playEngine := engine.NewFFplayEngine(cfg.FFplayPath)
	coordinator := player.NewCoordinator(playEngine, tracks, content)
	go coordinator.Run(ctx)

	alarmer := scheduler.NewTimerAlarmer(cfg.ExactAlarms)
	connectivity := trigger.NewHTTPConnectivity(cfg.ConnectivityProbeURL)

	// The schedule service and the trigger reference each other: alarms fire
	// the trigger, and the trigger re-arms alarms for the next week.
	var schedSvc *scheduler.Service
	trig := trigger.New(tracks, copies, schedules, content, coordinator, connectivity,
		func(scheduleID string, weekday time.Weekday) {
			schedSvc.ScheduleAlarm(scheduleID, weekday)
		})
	schedSvc = scheduler.NewService(schedules, alarmer, func(scheduleID string, weekday time.Weekday) {
		trig.Handle(scheduleID, weekday)
	})

	// In-process timers do not survive restarts.
	if err := schedSvc.RescheduleAll(); err != nil {
		logger.Error("failed to re-arm schedules", logger.ErrorField(err))
	}

	// Refresh feeds in the background so startup does not wait on the network.
	go func() {
		if err := feedSvc.RefreshAll(ctx); err != nil {
			logger.Warn("initial feed refresh failed", logger.ErrorField(err))
		}
	}()

	api := server.NewAPIHandler(tracks, copies, feedSvc, content, coordinator, schedSvc)
	if err := server.Start(cfg, api); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
