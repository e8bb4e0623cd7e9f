package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/LJTian/ImageHub/internal/collector"
	"github.com/LJTian/ImageHub/internal/config"
	"github.com/LJTian/ImageHub/internal/gallery"
	"github.com/LJTian/ImageHub/internal/storage"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// 一个仅执行一次流水线的命令行入口：适合手动预热缓存或排查某个数据源
func main() {
	_ = godotenv.Load()
	if err := app().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func app() *cli.App {
	return &cli.App{
		Name:  "collect",
		Usage: "Run the image pipeline once and print the result",
		Description: `Fetches every configured feed and news API, resolves one image per
		article and prints the image list in link order. Results go through the
		same cache as the web server, so a run also warms it up.

		Flags can generally be set via environment variables, e.g.:

		--sources => SOURCES_FILE=sources.toml`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "sources",
				Aliases: []string{"s"},
				Usage:   "TOML file with [[sources]] entries",
				EnvVars: []string{"SOURCES_FILE"},
			},
			&cli.BoolFlag{
				Name:  "fresh",
				Usage: "ignore the cached image list and recompute it",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the result as a JSON array",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Minute,
				Usage: "abort the run after this duration",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	cfg := config.Load()
	if path := c.String("sources"); path != "" && path != cfg.SourcesFile {
		sources, err := config.LoadSources(path)
		if err != nil {
			return err
		}
		cfg.Sources = config.ResolveSources(sources, cfg.NewsAPIKey)
	}

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	fetcher := collector.NewHTTPFetcher(cfg.HTTPTimeout)
	svc := gallery.NewService(cfg.Sources, fetcher, collector.NewImageExtractor(fetcher), store.Cache())
	svc.TTL = cfg.CacheTTL
	svc.Concurrency = cfg.FetchConcurrency
	svc.Snapshots = store

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	var images []string
	if c.Bool("fresh") {
		images, err = svc.Refresh(ctx)
	} else {
		images, err = svc.Images(ctx)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("pipeline failed: %v", err), 1)
	}

	if c.Bool("json") {
		return json.NewEncoder(c.App.Writer).Encode(images)
	}
	for _, img := range images {
		if img == "" {
			img = "-"
		}
		fmt.Fprintln(c.App.Writer, img)
	}
	return nil
}
