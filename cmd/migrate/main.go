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

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command> [arg]

commands:
  up              apply pending migrations
  down            roll back the latest migration
  status          list migrations and whether they are applied
  version         print the current schema version
  to <version>    migrate up or down to <version>
  create <name>   scaffold a new migration in -dir
  lint            check the embedded migrations
`

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", migrate.SourceDir, "directory for scaffolded migrations")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, arg := flag.Arg(0), flag.Arg(1)

	// commands that never touch the database
	switch command {
	case "create":
		if arg == "" {
			fail("create needs a migration name")
		}
		path, err := migrate.Scaffold(*dir, arg, time.Now())
		if err != nil {
			fail(err.Error())
		}
		fmt.Println(path)
		return
	case "lint":
		if err := migrate.Lint(migrate.Schema()); err != nil {
			fail(err.Error())
		}
		fmt.Println("migrations ok")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail(err.Error())
	}
	logg := logger.ForService("migrate", cfg.App)
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "command": command})

	if err := run(ctx, cfg, logg, command, arg); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, command, arg string) error {
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	migrator, err := migrate.New(sqlDB, nil)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		applied, err := migrator.Up(ctx)
		printSteps(applied)
		return err
	case "down":
		step, err := migrator.Down(ctx)
		if step != nil {
			printSteps([]migrate.Step{*step})
		}
		return err
	case "to":
		target, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("to needs a numeric version, got %q", arg)
		}
		moved, err := migrator.To(ctx, target)
		printSteps(moved)
		return err
	case "version":
		version, err := migrator.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil
	case "status":
		states, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tAPPLIED AT\tFILE")
		for _, st := range states {
			applied := "pending"
			if st.Applied {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", st.Version, applied, st.File)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printSteps(steps []migrate.Step) {
	for _, step := range steps {
		fmt.Printf("%-5s %d %s (%s)\n", step.Direction, step.Version, step.File, step.Duration.Round(time.Millisecond))
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
