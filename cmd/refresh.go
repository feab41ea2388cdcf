package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"DhammaFM/config"
	"DhammaFM/db"
	"DhammaFM/feed"
	"DhammaFM/logger"
	"DhammaFM/model"
	"DhammaFM/repository"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the talk feeds once and exit",
	Long:  `Fetches the evening and morning RSS feeds, replaces the stored catalog and exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
		})

		if err := db.Connect(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.AutoMigrate(&model.Track{}); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}

		tracks := repository.NewGormTrackRepository(db.DB)
		feedSvc := feed.NewService(cfg, tracks)

		if err := feedSvc.RefreshAll(context.Background()); err != nil {
			log.Fatalf("Refresh failed: %v", err)
		}

		all, err := tracks.GetAllTracks()
		if err != nil {
			log.Fatalf("Failed to read back catalog: %v", err)
		}
		fmt.Printf("Catalog refreshed: %d tracks\n", len(all))
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
