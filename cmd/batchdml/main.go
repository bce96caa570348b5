// Package main provides the "batchdml" tool, which translates batch
// definition files into parameterised INSERT, UPDATE and DELETE statements and
// runs them, one transaction per file.
//
// Run "batchdml -h" for a list of flags. With -dry-run the tool only prints the
// statements and bound arguments it would execute.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/letsencrypt/batchdml/adapter"
	"github.com/letsencrypt/batchdml/batch"
	"github.com/letsencrypt/batchdml/blog"
	"github.com/letsencrypt/batchdml/cmd"
	"github.com/letsencrypt/batchdml/config"
	"github.com/letsencrypt/batchdml/db"
	"github.com/letsencrypt/batchdml/executor"
	"github.com/letsencrypt/batchdml/types"
)

type Config struct {
	BatchDML struct {
		// DB is only needed when not running with -dry-run.
		DB *cmd.DBConfig `yaml:"db"`

		// Adapter selects the SQL dialect. Only mysql and postgres can
		// execute; the others are available to -dry-run.
		Adapter string `yaml:"adapter" validate:"omitempty,oneof=mysql postgres postgresql oracle plain"`

		// Parallelism bounds how many batch files run at once, each in its
		// own transaction. Zero means no limit.
		Parallelism int `yaml:"parallelism" validate:"min=0"`

		// Timeout bounds each file's transaction. Zero means no limit.
		Timeout config.Duration `yaml:"timeout" validate:"-"`

		// DebugAddr is the address to serve /metrics on.
		DebugAddr string `yaml:"debugAddr" validate:"omitempty,hostname_port"`
	} `yaml:"batchdml"`

	Log           blog.Config             `yaml:"log"`
	OpenTelemetry cmd.OpenTelemetryConfig `yaml:"openTelemetry"`
}

// batchSet is the batches built from one file.
type batchSet struct {
	name    string
	batches []batch.Batch
}

func loadBatchSets(filenames []string) ([]batchSet, error) {
	sets := make([]batchSet, 0, len(filenames))
	for _, name := range filenames {
		bf, err := loadBatchFile(name)
		if err != nil {
			return nil, err
		}
		batches, err := bf.build()
		if err != nil {
			return nil, fmt.Errorf("building batches from %q: %w", name, err)
		}
		sets = append(sets, batchSet{name: name, batches: batches})
	}
	return sets, nil
}

// runBatchSets runs each set in its own transaction, at most parallelism at a
// time. The first failure cancels the sets still running; sets that already
// committed stay committed.
func runBatchSets(ctx context.Context, dbMap db.Beginner, action *executor.Action, sets []batchSet, parallelism int, timeout time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for _, set := range sets {
		g.Go(func() error {
			ctx := blog.ContextWith(ctx, slog.String("file", set.name))
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			total, err := db.WithTransaction(ctx, dbMap, func(tx db.Transaction) (int64, error) {
				obs := &executor.CountingObserver{}
				for _, b := range set.batches {
					err := action.Run(ctx, tx, b, obs)
					if err != nil {
						return 0, err
					}
				}
				return obs.Total(), nil
			})
			if err != nil {
				return fmt.Errorf("%s: %w", set.name, err)
			}
			blog.Info(ctx, "batch file committed", blog.Rows(total))
			return nil
		})
	}
	return g.Wait()
}

func init() {
	cmd.RegisterConfigValidator("batchdml", &cmd.ConfigValidator{Config: &Config{}})
}

func main() {
	configFile := flag.String("config", "", "Path to the configuration file for this tool (required)")
	dryRunFlag := flag.Bool("dry-run", false, "Print statements and bound arguments instead of executing them")
	defaultUsage := flag.Usage
	flag.Usage = func() {
		defaultUsage()
		fmt.Fprintf(flag.CommandLine.Output(), "\nUsage: %s -config FILE [-dry-run] BATCH_FILE...\n", cmd.Command())
	}
	flag.Parse()

	if *configFile == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	err := cmd.ReadAndValidateConfigFile("batchdml", *configFile)
	cmd.FailOnError(err, "Failed to validate config file")

	var c Config
	err = cmd.ReadConfigFile(*configFile, &c)
	cmd.FailOnError(err, "Failed to read config file")

	a, err := adapter.ByName(c.BatchDML.Adapter)
	cmd.FailOnError(err, "Failed to select adapter")

	sets, err := loadBatchSets(flag.Args())
	cmd.FailOnError(err, "Failed to load batch files")

	registry := types.NewRegistry()
	if *dryRunFlag {
		err = dryRun(os.Stdout, a, registry, sets)
		cmd.FailOnError(err, "Dry run failed")
		return
	}

	if !cmd.CanExecute(a.Name()) {
		cmd.Fail(fmt.Sprintf("adapter %q can only be used with -dry-run", a.Name()))
	}
	if c.BatchDML.DB == nil {
		cmd.Fail("batchdml.db is required unless -dry-run is set")
	}

	stats, logger, oTelShutdown := cmd.StatsAndLogging(c.Log, c.OpenTelemetry, c.BatchDML.DebugAddr)
	logger.Info(cmd.VersionString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx = blog.NewContext(ctx, logger)

	dbMap, err := cmd.NewDbMap(ctx, a.Name(), *c.BatchDML.DB, stats)
	cmd.FailOnError(err, "Failed to connect to database")

	action := executor.New(a, registry, stats, cmd.Clock())
	err = runBatchSets(ctx, dbMap, action, sets, c.BatchDML.Parallelism, c.BatchDML.Timeout.Duration)

	stop()
	_ = dbMap.SQLDb().Close()
	oTelShutdown(context.Background())
	cmd.FailOnError(err, "Failed to run batches")
}
