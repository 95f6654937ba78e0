package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docopt/docopt-go"

	"social-go/internal/config"
	"social-go/internal/db"
	"social-go/internal/legacy"
	"social-go/internal/treestore"
)

const usage = `Import the legacy document tree into the SQL database.

Reads the whole tree from the hosted store (--url) or from a JSON export
(--file). Rows that already exist are left untouched, so the import can be
run again safely.

Usage:
    importer (--url=<url> | --file=<path>) [--config=<path>] [--auth=<token>] [--dry-run] [--mark]
    importer -h | --help

Options:
    -h --help          Show this screen.
    --url=<url>        Base URL of the hosted tree.
    --file=<path>      JSON export of the tree.
    --auth=<token>     Auth token for the hosted tree.
    --config=<path>    YAML or TOML config file [default: config/app.yaml].
    --dry-run          Import into a throwaway in-memory database.
    --mark             Record the run in the hosted tree (needs --url).`

func main() {
	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		panic(err)
	}
	configPath, _ := opts.String("--config")
	baseURL, _ := opts.String("--url")
	file, _ := opts.String("--file")
	auth, _ := opts.String("--auth")
	dryRun, _ := opts.Bool("--dry-run")
	mark, _ := opts.Bool("--mark")

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	cfg, fromFile, err := config.LoadOrDefault(configPath)
	if err != nil {
		logger.Fatal("failed to load config", "path", configPath, "err", err)
	}
	if !fromFile {
		logger.Warn("config file not found, using defaults", "path", configPath)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if mark && baseURL == "" {
		logger.Fatal("--mark needs --url")
	}

	driver, dsn := cfg.DBDriver, cfg.DBDSN
	if dryRun {
		driver, dsn = "sqlite3", ":memory:"
	}
	database, err := db.Init(driver, dsn)
	if err != nil {
		logger.Fatal("failed to initialize database", "driver", driver, "err", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		tree   *legacy.Tree
		client *treestore.Client
	)
	if baseURL != "" {
		client = treestore.New(baseURL, treestore.WithAuth(auth))
		logger.Info("fetching tree", "url", baseURL)
		tree, err = legacy.Fetch(ctx, client)
	} else {
		tree, err = readFile(file)
	}
	if err != nil {
		logger.Fatal("failed to read tree", "err", err)
	}

	report, err := legacy.NewImporter(database, logger).Import(ctx, tree)
	if err != nil {
		logger.Fatal("import failed", "err", err)
	}
	logger.Info("import finished", "dryRun", dryRun, "users", report.Users, "posts", report.Posts, "skipped", report.Skipped)

	if mark && !dryRun {
		if err := legacy.Mark(ctx, client, report, time.Now()); err != nil {
			logger.Fatal("failed to mark migration", "err", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(report)
}

func readFile(path string) (*legacy.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return legacy.Load(f)
}
