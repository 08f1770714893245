package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Publishes a realtime feed of readings for every restaurant",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		if feedPeriod <= 0 {
			return fmt.Errorf("--period must be positive")
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := client.Start(ctx); err != nil {
			return err
		}
		curve := NewCurve(loc, seed)

		log.WithFields(logrus.Fields{
			"endpoint":    endpoint,
			"restaurants": cat.Len(),
			"period":      feedPeriod.String(),
		}).Info("feed started")

		ticker := time.NewTicker(feedPeriod)
		defer ticker.Stop()

		emit := func(now time.Time) {
			for _, id := range cat.IDs() {
				client.Record(curve.Reading(id, now))
			}
		}
		emit(time.Now())

		for {
			select {
			case <-ctx.Done():
				err := client.Stop()
				log.WithFields(logrus.Fields{
					"sent":    client.Sent(),
					"dropped": client.Dropped(),
				}).Info("feed stopped")
				return err
			case now := <-ticker.C:
				emit(now)
			}
		}
	},
}

var feedPeriod time.Duration

func init() {
	rootCmd.AddCommand(feedCmd)
	feedCmd.Flags().DurationVar(&feedPeriod, "period", 5*time.Minute, "time between readings of one restaurant")
}
