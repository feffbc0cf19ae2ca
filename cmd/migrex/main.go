package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/alecthomas/kingpin"

	"github.com/cromanozero/migrex/backend/postgres"
	"github.com/cromanozero/migrex/pkg/migrex"
)

// version содержит текущую версию CLI.
// Назначение: показывать версию в команде version.
// version holds the current CLI version.
// Purpose: print version in the version command.
var version = "0.1.0"

var (
	app = kingpin.New("migrex", "Database schema migration engine.")

	dirFlag       = app.Flag("dir", "directory with migration files").Default("./migrations").String()
	dsnFlag       = app.Flag("dsn", "database connection string/DSN (or POSTGRES_* env vars)").String()
	tableFlag     = app.Flag("table", "metadata table name").Default("migrex_schema_history").String()
	targetFlag    = app.Flag("target", "migrate/info target version (or latest/current)").Default("latest").String()
	timeoutFlag   = app.Flag("timeout", "overall command timeout").Default("5m").Duration()
	outOfOrder    = app.Flag("out-of-order", "allow applying versions below the highest applied").Bool()
	ignoreFuture  = app.Flag("ignore-future", "treat unresolvable future entries as a warning").Default("true").Bool()
	baselineOnMig = app.Flag("baseline-on-migrate", "auto-baseline a non-empty database with no metadata").Bool()

	migrateCmd  = app.Command("migrate", "Apply pending migrations.")
	validateCmd = app.Command("validate", "Validate resolved migrations against applied history.")
	infoCmd     = app.Command("info", "Show the current migration state.")
	baselineCmd = app.Command("baseline", "Mark the schema as baselined at the configured baseline version.")
	cleanCmd    = app.Command("clean", "Drop every schema the engine created.")
	repairCmd   = app.Command("repair", "Remove failed entries and repair checksums.")
	versionCmd  = app.Command("version", "Print the CLI version.")
)

// main разбирает CLI-флаги и запускает выбранную команду миграции.
// Вход: флаги и подкоманда командной строки.
// Выход: код завершения процесса и сообщения stdout/stderr.
// Назначение: CLI для операций жизненного цикла миграций.
// main parses CLI flags and runs the selected migration command.
// Input: command-line flags and subcommand.
// Output: process exit code and stdout/stderr messages.
// Purpose: provide a CLI for the migration lifecycle commands.
func main() {
	command, err := app.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if command == versionCmd.FullCommand() {
		fmt.Println(version)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	executor, backend, err := buildExecutor()
	if err != nil {
		fail(err)
	}
	defer backend.Close()

	switch command {
	case migrateCmd.FullCommand():
		applied, err := executor.Migrate(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case validateCmd.FullCommand():
		if err := executor.Validate(ctx); err != nil {
			fail(err)
		}
		fmt.Println("validation ok")
	case infoCmd.FullCommand():
		rows, err := executor.Info(ctx)
		if err != nil {
			fail(err)
		}
		printInfo(rows)
	case baselineCmd.FullCommand():
		if err := executor.Baseline(ctx); err != nil {
			fail(err)
		}
		fmt.Println("baseline recorded")
	case cleanCmd.FullCommand():
		if err := executor.Clean(ctx); err != nil {
			fail(err)
		}
		fmt.Println("clean done")
	case repairCmd.FullCommand():
		if err := executor.Repair(ctx); err != nil {
			fail(err)
		}
		fmt.Println("repair done")
	}
}

// buildExecutor собирает Configuration и Backend из флагов и переменных
// окружения.
// Вход: нет (читает пакетные переменные флагов и os.Getenv).
// Выход: готовый Executor, Backend для Close, либо error.
// Назначение: общая точка сборки для всех подкоманд main.
// buildExecutor assembles a Configuration and Backend from flags and
// environment variables.
// Input: none (reads the package-level flag vars and os.Getenv).
// Output: a ready Executor, the Backend for Close, or error.
// Purpose: single assembly point shared by every subcommand in main.
func buildExecutor() (*migrex.Executor, *postgres.Backend, error) {
	dsn := pickEnv("MIGREX_DSN", *dsnFlag)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	if dsn == "" {
		return nil, nil, &migrex.Error{Kind: migrex.KindNotConfigured, Message: "dsn is required"}
	}

	target, err := parseTargetFlag(*targetFlag)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := migrex.NewConfiguration(
		migrex.WithLocations(pickEnv("MIGREX_MIGRATIONS_DIR", *dirFlag)),
		migrex.WithMetadataTable(pickEnv("MIGREX_TABLE", *tableFlag)),
		migrex.WithTarget(target),
		migrex.WithOutOfOrder(*outOfOrder),
		migrex.WithIgnoreFuture(*ignoreFuture),
		migrex.WithBaselineOnMigrate(*baselineOnMig),
	)
	if err != nil {
		return nil, nil, err
	}

	backend, err := postgres.Open(dsn, cfg.MetadataTable)
	if err != nil {
		return nil, nil, &migrex.Error{Kind: migrex.KindBackendError, Message: "open backend", Cause: err}
	}

	executor, err := migrex.NewExecutor(cfg, backend, backend)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return executor, backend, nil
}

func parseTargetFlag(raw string) (migrex.VersionKey, error) {
	switch raw {
	case "latest", "":
		return migrex.Latest, nil
	case "current":
		return migrex.Current, nil
	default:
		return migrex.ParseVersion(raw)
	}
}

func printInfo(rows []migrex.InfoRow) {
	if len(rows) == 0 {
		fmt.Println("no migrations resolved")
		return
	}
	for _, row := range rows {
		fmt.Printf("%-14s %-8s %s\n", row.State, row.Version(), row.Description())
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

// pickEnv returns the named environment variable, falling back to
// fallback when unset or empty.
func pickEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// buildPostgresDSNFromEnv assembles a DSN from POSTGRES_* variables
// when MIGREX_DSN/--dsn are both unset.
func buildPostgresDSNFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	user := os.Getenv("POSTGRES_USER")
	password := os.Getenv("POSTGRES_PASSWORD")
	db := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")

	if host == "" || user == "" || db == "" {
		return ""
	}
	if port == "" {
		port = "5432"
	}
	if _, err := strconv.Atoi(port); err != nil {
		return ""
	}
	if password != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, db)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable", user, host, port, db)
}
