package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/docstream/internal/bus"
	"github.com/standardbeagle/docstream/internal/config"
	"github.com/standardbeagle/docstream/internal/docstore"
	"github.com/standardbeagle/docstream/internal/ingest"
	"github.com/standardbeagle/docstream/internal/logging"
	"github.com/standardbeagle/docstream/internal/metrics"
	"github.com/standardbeagle/docstream/internal/persist"
	"github.com/standardbeagle/docstream/internal/podtail"
	"github.com/standardbeagle/docstream/internal/sink"
	"github.com/standardbeagle/docstream/internal/staging"
	"github.com/standardbeagle/docstream/internal/version"
)

var log = logging.For("main")

func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", c.String("config"), err)
	}
	if bind := c.String("bind"); bind != "" {
		cfg.Network.BindAddr = bind
	}
	if dir := c.String("state-dir"); dir != "" {
		cfg.Persist.Dir = dir
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// engine is the fully-wired set of components a running docstream
// instance needs, shared by the serve and query subcommands.
type engine struct {
	cfg     *config.Config
	task    *bus.Task
	persist *persist.Controller
	ticker  *metrics.Ticker
}

func buildEngine(cfg *config.Config, resultSink bus.Sink) (*engine, error) {
	if err := os.MkdirAll(cfg.Persist.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	controller := persist.New(cfg.Persist.Dir)
	index := controller.LoadIndex(cfg.Store.AdmissionP)

	storePath := filepath.Join(cfg.Persist.Dir, "store.data")
	store, err := docstore.Open(storePath, cfg.Store.DictionaryThresholdBytes)
	if err != nil {
		return nil, err
	}
	controller.LoadStoreIndex(store)

	buffer := staging.New(cfg.Staging.ByteBudget, index, store)
	controller.LoadStaging(buffer)

	task := bus.New(cfg.Performance.CommandChannelCapacity, buffer, index, store, resultSink, controller, cfg.Staging.SortPointer, podtail.Start)

	ticker := metrics.NewTicker(
		time.Duration(cfg.Performance.MetricsIntervalMs)*time.Millisecond,
		metrics.Source{Buffer: buffer, Store: store, Ongoing: task.Ongoing},
		resultSink,
	)

	return &engine{cfg: cfg, task: task, persist: controller, ticker: ticker}, nil
}

// run starts the indexer task and the ingestion listener, and blocks
// until ctx is cancelled. The indexer runs in its own errgroup member so
// shutdown can wait for its final persist-on-quit to finish before
// returning, instead of racing the process exit against it.
func (e *engine) run(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.task.Run()
		return nil
	})

	e.ticker.Start()
	defer e.ticker.Stop()

	listener := ingest.New(e.cfg.Network.BindAddr, e.task.Commands())
	if err := listener.Start(); err != nil {
		return fmt.Errorf("bind %s: %w", e.cfg.Network.BindAddr, err)
	}
	log.Printf("listening on %s, state dir %s", e.cfg.Network.BindAddr, e.cfg.Persist.Dir)

	<-ctx.Done()
	log.Printf("shutting down")
	if err := listener.Stop(); err != nil {
		log.Printf("listener stop error: %v", err)
	}
	e.task.Commands() <- bus.NewQuit()
	return g.Wait()
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the ingestion listener and indexer until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "override network.bind from config"},
			&cli.StringFlag{Name: "state-dir", Usage: "override persist.dir from config"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}

			e, err := buildEngine(cfg, sink.NewStreamSink(os.Stdout))
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return e.run(ctx)
		},
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "load the persisted state directory, run one Filter, print results",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state-dir", Usage: "override persist.dir from config"},
			&cli.StringFlag{Name: "neg", Usage: "negative query term set"},
			&cli.BoolFlag{Name: "exact", Usage: "treat query as a single exact substring"},
			&cli.IntFlag{Name: "limit", Value: config.DefaultQueryLimit},
			&cli.IntFlag{Name: "deadline-ms", Value: config.DefaultQueryDeadlineMs},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: docstream query [flags] <query>")
			}
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}

			collector := sink.NewCollectorSink()
			e, err := buildEngine(cfg, collector)
			if err != nil {
				return err
			}
			go e.task.Run()

			e.task.Commands() <- bus.NewFilter(bus.FilterParams{
				Query:      c.Args().Get(0),
				NegQuery:   c.String("neg"),
				Exact:      c.Bool("exact"),
				Limit:      c.Int("limit"),
				DeadlineMs: c.Int("deadline-ms"),
				Seq:        0,
			})

			select {
			case batch := <-collector.Results():
				for _, body := range batch.Bodies {
					fmt.Println(string(body))
				}
				if batch.Truncated {
					fmt.Fprintln(os.Stderr, "(truncated: deadline reached)")
				}
			case <-time.After(time.Duration(c.Int("deadline-ms"))*time.Millisecond + time.Second):
				return fmt.Errorf("query timed out waiting for a response")
			}

			e.task.Commands() <- bus.NewQuit()
			return nil
		},
	}
}

func clearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "delete all persisted state under persist.dir",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state-dir", Usage: "override persist.dir from config"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}
			controller := persist.New(cfg.Persist.Dir)
			if err := controller.Purge(); err != nil {
				return err
			}
			storePath := filepath.Join(cfg.Persist.Dir, "store.data")
			if err := os.Remove(storePath); err != nil && !os.IsNotExist(err) {
				return err
			}
			fmt.Println("cleared", cfg.Persist.Dir)
			return nil
		},
	}
}

func main() {
	app := &cli.App{
		Name:    "docstream",
		Usage:   "streaming JSON-lines search engine",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   "docstream.kdl",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			queryCommand(),
			clearCommand(),
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(c *cli.Context) error {
					fmt.Println(version.FullInfo())
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}
