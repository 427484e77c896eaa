package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/migrate"
)

const usage = "usage: migrate -cmd up|down|status|to|create|validate [-version N] [-name slug] [-dir path]"

func main() {
	cmd := flag.String("cmd", "up", "up, down, status, to, create or validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "slug for -cmd create")
	version := flag.String("version", "", "target version for -cmd to")
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := context.Background()

	source := migrate.Embedded()
	if *dir != "" {
		source = os.DirFS(*dir)
	}

	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.SourceDir
		}
		path, err := migrate.Create(target, *name, time.Now())
		exitOn(ctx, logg, "create migration", err)
		fmt.Println(path)
		return
	case "validate":
		exitOn(ctx, logg, "validate migrations", migrate.Validate(source))
		fmt.Println("migrations ok")
		return
	case "up", "down", "status", "to":
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	exitOn(ctx, logg, "load config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	if cfg.FeatureFlags.UseSQLite {
		exitOn(ctx, logg, "migrate", fmt.Errorf("sqlite databases are built from the models; goose migrations target postgres"))
	}

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	exitOn(ctx, logg, "open sql handle", err)

	m, err := migrate.New(sqlDB, source, logg)
	exitOn(ctx, logg, "build migrator", err)

	switch *cmd {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "to":
		var target int64
		target, err = strconv.ParseInt(*version, 10, 64)
		if err != nil {
			err = fmt.Errorf("-version must be a migration timestamp: %w", err)
			break
		}
		err = m.To(ctx, target)
	case "status":
		err = printStatus(ctx, m)
	}
	exitOn(ctx, logg, *cmd, err)
}

func printStatus(ctx context.Context, m *migrate.Migrator) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, st := range statuses {
		applied := "-"
		if !st.AppliedAt.IsZero() {
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, st.Source.Path)
	}
	return w.Flush()
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}
