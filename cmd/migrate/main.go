package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/pkg/dbconn"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

var dispatchTables = []string{"campaigns", "contacts", "contact_groups", "scheduled_sends", "failed_messages"}

func main() {
	os.Exit(run())
}

func run() int {
	dir := flag.String("dir", "migrations", "directory of .sql files")
	listOnly := flag.Bool("list", false, "list dispatch tables and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv("")
	if err != nil {
		logger.Error("load config", "error", err)
		return 1
	}
	if cfg.Database.URL == "" {
		logger.Error("DATABASE_URL is required")
		return 1
	}

	mgr, err := dbconn.Open(cfg.Database.URL, dbconn.PoolConfig{MaxOpenConns: 1}, cfg.Database.RetryDelay())
	if err != nil {
		logger.Error("open database", "error", err)
		return 1
	}
	defer mgr.Close()

	ctx := context.Background()
	if err := mgr.EnsureConnected(ctx); err != nil {
		logger.Error("connect", "error", err)
		return 1
	}

	if *listOnly {
		return listTables(ctx, mgr.DB())
	}

	files, err := sqlFiles(*dir)
	if err != nil {
		logger.Error("read migrations", "dir", *dir, "error", err)
		return 1
	}

	var applied, failed int
	for _, f := range files {
		if err := apply(ctx, mgr.DB(), filepath.Join(*dir, f)); err != nil {
			logger.Error("migration failed", "file", f, "error", err)
			failed++
			continue
		}
		logger.Info("migration applied", "file", f)
		applied++
	}
	logger.Info("migrations complete", "applied", applied, "failed", failed)
	if failed > 0 {
		return 1
	}
	return 0
}

func sqlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// apply runs one file in its own transaction.
func apply(ctx context.Context, db *sql.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(data)); err != nil {
		return err
	}
	return tx.Commit()
}

func listTables(ctx context.Context, db *sql.DB) int {
	for _, t := range dispatchTables {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM pg_tables WHERE schemaname = 'public' AND tablename = $1)`, t).Scan(&exists)
		if err != nil {
			logger.Error("list tables", "error", err)
			return 1
		}
		state := "missing"
		if exists {
			state = "present"
		}
		fmt.Printf("  %-16s %s\n", t, state)
	}
	return 0
}
