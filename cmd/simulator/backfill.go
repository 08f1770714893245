package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/producer"
)

var (
	offset         time.Duration
	backfillPeriod time.Duration
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfills readings from --offset ago and stops when 'now' is reached",
	RunE: func(cmd *cobra.Command, args []string) error {
		if offset <= 0 {
			return fmt.Errorf("--offset must be positive")
		}
		if backfillPeriod <= 0 {
			return fmt.Errorf("--period must be positive")
		}

		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}

		if err := client.Start(context.Background()); err != nil {
			return err
		}

		end := time.Now().UTC().Truncate(backfillPeriod)
		start := end.Add(-offset)
		n := backfill(client, cat, NewCurve(loc, seed), start, end, backfillPeriod)

		err = client.Stop()
		log.WithFields(logrus.Fields{
			"start":   start.Format(time.RFC3339),
			"end":     end.Format(time.RFC3339),
			"records": n,
			"sent":    client.Sent(),
			"dropped": client.Dropped(),
		}).Info("backfill completed")
		return err
	},
}

// backfill records one reading per restaurant for every step in [start, end]
func backfill(client *producer.Client, cat *catalog.Catalog, curve *Curve, start, end time.Time, step time.Duration) int {
	n := 0
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		for _, id := range cat.IDs() {
			client.Record(curve.Reading(id, ts))
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	backfillCmd.Flags().DurationVar(&offset, "offset", 7*24*time.Hour, "how far back in time to start")
	backfillCmd.Flags().DurationVar(&backfillPeriod, "period", 15*time.Minute, "time between readings of one restaurant")
}
