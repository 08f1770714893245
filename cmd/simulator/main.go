// Command simulator generates synthetic popularity readings and pushes them to
// the ingest endpoint, either as a realtime feed or as a historical backfill.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/logging"
	"github.com/rcookie777/pizza-api/pkg/producer"
)

var log = logging.Component("simulator")

var rootCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Generates synthetic restaurant popularity for the Pizza Index",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(logLevel, logJSON)
	},
}

var (
	// flags shared by every subcommand
	endpoint    string
	apiKey      string
	catalogFile string
	logLevel    string
	logJSON     bool
	timezone    string
	seed        int64
	flushDur    time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", producer.DefaultEndpoint, "ingest endpoint URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "bearer token sent with every batch")
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "YAML restaurant catalog (default is the built-in list)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON logs")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "America/New_York", "timezone of the busyness curve")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 1, "random seed for jitter")
	rootCmd.PersistentFlags().DurationVar(&flushDur, "flush", 5*time.Second, "how often to flush readings")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadCatalog() (*catalog.Catalog, error) {
	if catalogFile == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(catalogFile)
}

func newClient() (*producer.Client, error) {
	return producer.New(producer.ClientConfig{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		FlushEvery: flushDur,
	})
}
