package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/internal/profiles"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/joho/godotenv"
)

type options struct {
	dir     string
	name    string
	version string
	email   string
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront-migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "command: up|down|status|version|create|validate|grant-admin|revoke-admin")
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.StringVar(&opts.email, "email", "", "account email (grant-admin, revoke-admin)")
	flag.Parse()

	// create and validate only touch the filesystem
	switch *cmd {
	case "create":
		if opts.name == "" {
			exitf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			exitf("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "storefront-migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": opts.dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.SQL()
	requireResource(ctx, logg, "sql database", err)

	if err := run(ctx, *cmd, opts, dbClient, sqlDB); err != nil {
		logg.Error(ctx, "migrate command failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate command finished")
}

func run(ctx context.Context, cmd string, opts options, dbClient *db.Client, sqlDB *sql.DB) error {
	switch cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, opts.dir, cmd)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	case "grant-admin", "revoke-admin":
		return setAdmin(ctx, dbClient, opts.email, cmd == "grant-admin")
	default:
		return fmt.Errorf("unknown -cmd value %q", cmd)
	}
}

// setAdmin edits the admin allow-list for an existing account.
func setAdmin(ctx context.Context, dbClient *db.Client, email string, grant bool) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("missing -email")
	}
	user, err := identity.NewRepository(dbClient.DB()).FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find account %s: %w", email, err)
	}
	roles := profiles.NewRoleStore(dbClient.DB(), false)
	if grant {
		return roles.Grant(ctx, user.ID, email)
	}
	return roles.Revoke(ctx, user.ID)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
