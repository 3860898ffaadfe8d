// Command search runs one aggregate search from the command line and prints
// the releases and per-indexer statuses as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"metasearch/packages/app"
	"metasearch/packages/category"
	"metasearch/packages/config"
	"metasearch/packages/logging"
	"metasearch/packages/query"
)

func main() {
	var (
		season   = flag.Int("season", -1, "season number")
		episode  = flag.String("ep", "", "episode")
		imdbID   = flag.String("imdb", "", "imdb id")
		tvdbID   = flag.String("tvdb", "", "tvdb id")
		cats     = flag.String("cat", "", "comma separated category ids")
		indexers = flag.String("indexers", "", "comma separated indexer ids, all when empty")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}
	cfg, err := config.Load()
	if err != nil {
		app.Exit("Failed to load configuration", err)
	}
	// stdout carries the JSON result
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, logging.ParseLevel(cfg.LogLevel), "search")))

	req := query.SearchRequest{
		Text:       strings.Join(flag.Args(), " "),
		Episode:    *episode,
		IMDBID:     *imdbID,
		TVDBID:     *tvdbID,
		Categories: category.ParseList(*cats),
	}
	if *season >= 0 {
		req.Season = season
	}
	q := query.FromRequest(req)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.New(ctx, cfg)
	if err != nil {
		app.Exit("Failed to build search pipeline", err)
	}
	defer pipeline.Close()

	var ids []string
	if *indexers != "" {
		ids = strings.Split(*indexers, ",")
	}
	res := pipeline.Aggregator.Search(ctx, q, ids)

	sort.SliceStable(res.Releases, func(i, j int) bool {
		return res.Releases[i].PublishDate.After(res.Releases[j].PublishDate)
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
