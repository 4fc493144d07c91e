// rollout inspects persisted agent-conversation rollouts.
//
// Usage:
//
//	rollout -list                         List sessions in the sessions dir
//	rollout -follow                       Watch the sessions dir for new rollouts
//	rollout <file.jsonl>                  Print the reconstructed history
//	rollout -db s.db -session <id>        Reconstruct from a SQLite rollout store
//	rollout -backtrack 2 <file.jsonl>     Rewind 2 user turns before printing
//	rollout -model-only <file.jsonl>      Print only the model in effect at resume
//	rollout -json <file.jsonl>            Emit the materialized history as JSON
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mfateev/agent-rollout/internal/config"
	"github.com/mfateev/agent-rollout/internal/models"
	"github.com/mfateev/agent-rollout/internal/replay"
	"github.com/mfateev/agent-rollout/internal/rollout"
	"github.com/mfateev/agent-rollout/internal/truncate"
	"github.com/mfateev/agent-rollout/internal/version"
)

func main() {
	list := flag.Bool("list", false, "List sessions in the sessions directory")
	follow := flag.Bool("follow", false, "Watch the sessions directory for new rollouts")
	dir := flag.String("dir", "", "Sessions directory (default from config)")
	dbPath := flag.String("db", "", "SQLite rollout store path")
	sessionID := flag.String("session", "", "Session id within the SQLite store")
	backtrack := flag.Int("backtrack", 0, "Rewind N user turns before materializing")
	modelOnly := flag.Bool("model-only", false, "Print only the model in effect at resume")
	asJSON := flag.Bool("json", false, "Emit the materialized history as JSON")
	maxTokens := flag.Int("max-tokens", 0, "Trim the materialized history to a token budget")
	pageSize := flag.Int("page-size", 0, "Records per reverse read")
	configPath := flag.String("config", config.DefaultPath(), "Config file path")
	verbose := flag.Bool("v", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("rollout", version.GitCommit)
		return
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("%v", err)
	}
	if *dir != "" {
		cfg.SessionsDir = *dir
	}
	if *pageSize > 0 {
		cfg.PageSize = *pageSize
	}
	if *maxTokens > 0 {
		cfg.MaterializeMaxTokens = *maxTokens
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case *list:
		if err := runList(cfg.SessionsDir); err != nil {
			fatalf("%v", err)
		}
	case *follow:
		if err := runFollow(ctx, cfg.SessionsDir); err != nil && ctx.Err() == nil {
			fatalf("%v", err)
		}
	default:
		source, cleanup, err := openSource(cfg, *dbPath, *sessionID, logger, flag.Arg(0))
		if err != nil {
			fatalf("%v", err)
		}
		defer cleanup()
		if err := runShow(ctx, cfg, source, logger, *backtrack, *modelOnly, *asJSON); err != nil {
			fatalf("%v", err)
		}
	}
}

func openSource(cfg config.Config, dbPath, sessionID string, logger *slog.Logger, path string) (rollout.Source, func(), error) {
	if dbPath != "" {
		if sessionID == "" {
			return nil, nil, fmt.Errorf("-db requires -session")
		}
		store, err := rollout.OpenSQLiteStore(dbPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store.Source(sessionID), func() { store.Close() }, nil
	}
	if path == "" {
		return nil, nil, fmt.Errorf("a rollout file path is required (or use -list / -db)")
	}
	src, err := rollout.NewFileSource(path, logger)
	if err != nil {
		return nil, nil, err
	}
	return src, func() { src.Close() }, nil
}

func runList(dir string) error {
	entries, err := rollout.ListSessions(dir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no sessions found in", dir)
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-36s  %8d  %s\n",
			e.ModifiedAt.Format(time.RFC3339), e.ID, e.SizeBytes, e.Path)
	}
	return nil
}

func runFollow(ctx context.Context, dir string) error {
	fmt.Println("watching", dir)
	return rollout.WatchSessions(ctx, dir, func(e rollout.SessionEntry) {
		fmt.Printf("%s  %-36s  %s\n", e.ModifiedAt.Format(time.RFC3339), e.ID, e.Path)
	})
}

func runShow(ctx context.Context, cfg config.Config, source rollout.Source, logger *slog.Logger, backtrack int, modelOnly, asJSON bool) error {
	rec, err := replay.Reconstruct(ctx, source,
		replay.WithPageSize(cfg.PageSize), replay.WithLogger(logger))
	if err != nil {
		return err
	}

	if modelOnly {
		model := rec.PreviousModel
		if model == "" {
			model = "(none recorded)"
		}
		fmt.Println(model)
		return nil
	}

	if backtrack > 0 {
		rec.History.ApplyBacktracking(backtrack)
	}

	opts := replay.MaterializeOptions{}
	if cfg.MergeMaxUserMessageTokens > 0 {
		opts.Merge.MaxUserMessageTokens = cfg.MergeMaxUserMessageTokens
	}
	if cfg.MaterializeMaxTokens > 0 {
		opts.Truncation = truncate.Tokens(cfg.MaterializeMaxTokens)
	}
	items, err := rec.History.Materialize(ctx, opts)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if rec.PreviousModel != "" {
		fmt.Printf("model: %s\n\n", rec.PreviousModel)
	}
	for _, item := range items {
		printItem(item)
	}
	return nil
}

func printItem(item models.ResponseItem) {
	switch item.Type {
	case models.ItemTypeUserMessage:
		fmt.Printf("user> %s\n", item.Content)
	case models.ItemTypeAssistantMessage:
		fmt.Printf("assistant> %s\n", item.Content)
	case models.ItemTypeFunctionCall:
		fmt.Printf("tool call> %s(%s)\n", item.Name, item.Arguments)
	case models.ItemTypeFunctionCallOutput:
		out := ""
		if item.Output != nil {
			out = item.Output.Content
		}
		fmt.Printf("tool result> %s\n", firstLine(out))
	default:
		fmt.Printf("%s> %s\n", item.Type, item.Content)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "rollout: "+format+"\n", args...)
	os.Exit(1)
}
