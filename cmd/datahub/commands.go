package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	datahub "github.com/opencivic/datahub"
	"github.com/opencivic/datahub/api"
	"github.com/opencivic/datahub/core"
	"github.com/opencivic/datahub/embed"
)

func dataFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "data",
		Aliases:  []string{"d"},
		Usage:    "Path to the data directory",
		Required: true,
	}
}

func embeddingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.BoolFlag{
			Name:  "no-embedder",
			Usage: "Disable the embedding provider (skips similarity indexing and search)",
		},
	}
}

func openHub(c *cli.Context) (*datahub.Hub, error) {
	var opts []datahub.HubOption
	var cfgOpts []embed.ConfigOption
	if host := c.String("embedding-host"); host != "" {
		cfgOpts = append(cfgOpts, embed.WithHost(host))
	}
	if model := c.String("embedding-model"); model != "" {
		cfgOpts = append(cfgOpts, embed.WithModel(model))
	}
	opts = append(opts, datahub.WithEmbeddingConfig(embed.NewConfig(cfgOpts...)))
	if c.Bool("no-embedder") {
		opts = append(opts, datahub.WithoutEmbedder())
	}
	if path := c.String("policies"); path != "" {
		opts = append(opts, datahub.WithPolicyFile(path))
	}
	return datahub.NewHub(c.String("data"), opts...)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API over the storage router and retrieval facade",
		Action: serveAction,
		Flags: append([]cli.Flag{
			dataFlag(),
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Listen address",
				Value: "127.0.0.1:8572",
			},
			&cli.StringFlag{
				Name:  "policies",
				Usage: "Path to a YAML policy file (watched for changes)",
			},
		}, embeddingFlags()...),
	}
}

func serveAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub, err := openHub(c)
	if err != nil {
		return fmt.Errorf("failed to open data hub: %w", err)
	}
	defer hub.Close()

	rtr, err := hub.NewRouter()
	if err != nil {
		return fmt.Errorf("failed to create storage router: %w", err)
	}
	defer rtr.Release()

	facade, err := hub.NewFacade()
	if err != nil {
		return fmt.Errorf("failed to create retrieval facade: %w", err)
	}

	if path := c.String("policies"); path != "" {
		go func() {
			if err := hub.Policies().Watch(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "policy watcher stopped: %v\n", err)
			}
		}()
	}

	srv := &http.Server{
		Addr: c.String("listen"),
		Handler: api.NewHandler(api.Deps{
			Router:  rtr,
			Facade:  facade,
			Metrics: hub.Metrics(),
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func storeCommand() *cli.Command {
	return &cli.Command{
		Name:      "store",
		Usage:     "Run a JSON batch through the quality pipeline and store it",
		ArgsUsage: "FILE",
		Action:    storeAction,
		Flags: append([]cli.Flag{
			dataFlag(),
			&cli.StringFlag{
				Name:     "category",
				Aliases:  []string{"c"},
				Usage:    "Category of the batch",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "policies",
				Usage: "Path to a YAML policy file",
			},
		}, embeddingFlags()...),
	}
}

func storeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one JSON file argument")
	}

	raw, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}
	var batch []core.RawRecord
	if err := json.Unmarshal(raw, &batch); err != nil {
		return fmt.Errorf("failed to parse batch file: %w", err)
	}

	hub, err := openHub(c)
	if err != nil {
		return fmt.Errorf("failed to open data hub: %w", err)
	}
	defer hub.Close()

	rtr, err := hub.NewRouter()
	if err != nil {
		return fmt.Errorf("failed to create storage router: %w", err)
	}
	defer rtr.Release()

	outcome := rtr.Store(c.Context, c.String("category"), batch)
	if err := printJSON(outcome); err != nil {
		return err
	}
	if !outcome.Success {
		return fmt.Errorf("batch was not stored in any backend")
	}
	return nil
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search stored records by semantic similarity",
		ArgsUsage: "QUERY",
		Action:    searchAction,
		Flags: append([]cli.Flag{
			dataFlag(),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"k"},
				Usage:   "Maximum number of matches",
				Value:   10,
			},
		}, embeddingFlags()...),
	}
}

func searchAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one query argument")
	}

	hub, err := openHub(c)
	if err != nil {
		return fmt.Errorf("failed to open data hub: %w", err)
	}
	defer hub.Close()

	facade, err := hub.NewFacade()
	if err != nil {
		return fmt.Errorf("failed to create retrieval facade: %w", err)
	}

	matches, err := facade.SearchSimilar(c.Context, c.Args().First(), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return printJSON(matches)
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:   "report",
		Usage:  "Re-grade the data stored for a category",
		Action: reportAction,
		Flags: []cli.Flag{
			dataFlag(),
			&cli.StringFlag{
				Name:     "category",
				Aliases:  []string{"c"},
				Usage:    "Category to report on",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "no-embedder",
				Usage: "Disable the embedding provider",
				Value: true,
				// Reports never touch the vector index.
				Hidden: true,
			},
		},
	}
}

func reportAction(c *cli.Context) error {
	hub, err := openHub(c)
	if err != nil {
		return fmt.Errorf("failed to open data hub: %w", err)
	}
	defer hub.Close()

	facade, err := hub.NewFacade()
	if err != nil {
		return fmt.Errorf("failed to create retrieval facade: %w", err)
	}

	report, err := facade.QualityReport(c.Context, c.String("category"), nil)
	if err != nil {
		return fmt.Errorf("failed to build quality report: %w", err)
	}
	return printJSON(report)
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:   "cleanup",
		Usage:  "Remove expired documents from the document store",
		Action: cleanupAction,
		Flags: []cli.Flag{
			dataFlag(),
			&cli.BoolFlag{
				Name:   "no-embedder",
				Value:  true,
				Hidden: true,
			},
		},
	}
}

func cleanupAction(c *cli.Context) error {
	hub, err := openHub(c)
	if err != nil {
		return fmt.Errorf("failed to open data hub: %w", err)
	}
	defer hub.Close()

	rtr, err := hub.NewRouter()
	if err != nil {
		return fmt.Errorf("failed to create storage router: %w", err)
	}
	defer rtr.Release()

	removed, err := rtr.CleanupExpired(c.Context)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return printJSON(map[string]any{"removed": removed})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
