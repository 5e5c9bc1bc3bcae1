// Command migrate applies, rolls back, and inspects dispatch-core's SQL
// schema migrations.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/developer-mesh/dispatch-core/pkg/database/migration"
)

const defaultMigrationsPath = "migrations/sql"

var (
	createFlag   = flag.Bool("create", false, "Create a new migration")
	upFlag       = flag.Bool("up", false, "Run migrations up")
	downFlag     = flag.Bool("down", false, "Roll back the last migration")
	resetFlag    = flag.Bool("reset", false, "Roll back all migrations")
	versionFlag  = flag.Bool("version", false, "Show current migration version")
	validateFlag = flag.Bool("validate", false, "Validate migrations without applying them")
	forceFlag    = flag.Int("force", -1, "Force migration version")

	dsn           = flag.String("dsn", "", "Database connection string")
	migrationsDir = flag.String("dir", defaultMigrationsPath, "Migrations directory")
	migrationName = flag.String("name", "", "Migration name (used with -create)")
	steps         = flag.Int("steps", 0, "Number of migrations to apply (0 = all)")
	timeout       = flag.Duration("timeout", 1*time.Minute, "Migration timeout")
	driver        = flag.String("driver", "postgres", "Database driver")
)

func main() {
	flag.Parse()

	if *createFlag && *migrationName == "" {
		fmt.Println("Error: -name is required when using -create")
		flag.Usage()
		os.Exit(1)
	}

	if *createFlag {
		if err := migration.CreateMigration(*migrationsDir, *migrationName); err != nil {
			log.Fatalf("Failed to create migration: %v", err)
		}
		return
	}

	if *dsn == "" {
		fmt.Println("Error: -dsn is required for all operations except -create")
		flag.Usage()
		os.Exit(1)
	}

	db, err := sql.Open(*driver, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	sqlxDB := sqlx.NewDb(db, *driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Received termination signal, canceling operations...")
		cancel()
	}()

	manager, err := migration.NewManager(sqlxDB, migration.Config{
		MigrationsPath:   *migrationsDir,
		MigrationTimeout: *timeout,
		Steps:            *steps,
	}, *driver)
	if err != nil {
		log.Fatalf("Failed to create migration manager: %v", err)
	}
	defer manager.Close()

	if err := manager.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize migration manager: %v", err)
	}

	switch {
	case *versionFlag:
		version, dirty, err := manager.GetVersion()
		if err != nil {
			log.Fatalf("Failed to get migration version: %v", err)
		}
		fmt.Printf("Current migration version: %d (dirty: %t)\n", version, dirty)

	case *validateFlag:
		fmt.Println("Validating migrations...")
		if err := manager.ValidateMigrations(ctx); err != nil {
			log.Fatalf("Migration validation failed: %v", err)
		}
		fmt.Println("Migrations are valid")

	case *forceFlag >= 0:
		fmt.Printf("Forcing migration version to %d...\n", *forceFlag)
		if err := manager.ForceVersion(uint(*forceFlag)); err != nil {
			log.Fatalf("Failed to force version: %v", err)
		}
		fmt.Printf("Migration version forced to %d\n", *forceFlag)

	case *upFlag:
		fmt.Println("Running migrations...")
		startTime := time.Now()
		if err := manager.RunMigrations(ctx); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Printf("Migrations completed in %s\n", time.Since(startTime))

	case *downFlag:
		fmt.Println("Rolling back last migration...")
		if err := manager.Rollback(ctx); err != nil {
			log.Fatalf("Failed to roll back migration: %v", err)
		}
		fmt.Println("Rollback completed")

	case *resetFlag:
		fmt.Println("Rolling back all migrations...")
		if err := manager.RollbackAll(ctx); err != nil {
			log.Fatalf("Failed to reset migrations: %v", err)
		}
		fmt.Println("All migrations have been rolled back")

	default:
		flag.Usage()
	}
}
