// Command bootstrap creates a tenant and its first administrator so the
// server has someone who can log in.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stanstork/franchise-hub/internal/migration"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/repository"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type options struct {
	databaseURL string
	tenant      string
	email       string
	password    string
	firstName   string
	lastName    string
	role        models.UserRole
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	goose.SetLogger(migration.NewGooseAdapter(logger))

	if err := run(os.Args[1:], logger); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Error().Err(err).Msg("bootstrap failed")
		os.Exit(1)
	}
}

func run(args []string, logger zerolog.Logger) error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	opts, err := parseOptions(args, os.Getenv)
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := migration.RunMigrations(ctx, db, logger); err != nil {
		return err
	}

	tenant, err := repository.NewTenantRepository(db).EnsureTenant(ctx, opts.tenant)
	if err != nil {
		return err
	}

	user, err := repository.NewUserRepository(db).CreateUser(ctx, repository.CreateUserParams{
		TenantID:  tenant.ID,
		Email:     opts.email,
		Password:  opts.password,
		FirstName: opts.firstName,
		LastName:  opts.lastName,
		Roles:     []models.UserRole{opts.role},
	})
	if err != nil {
		return errors.Wrapf(err, "create user %s", opts.email)
	}

	logger.Info().
		Str("tenant_id", tenant.ID).
		Str("tenant", tenant.Name).
		Str("user_id", user.ID).
		Str("role", string(opts.role)).
		Msg("bootstrap complete")
	return nil
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var (
		opts options
		role string
	)
	flags := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	flags.StringVar(&opts.databaseURL, "database-url", getenv("FRANCHISE_DATABASE_URL"), "PostgreSQL connection string")
	flags.StringVar(&opts.tenant, "tenant", "", "tenant name, created when missing")
	flags.StringVar(&opts.email, "email", "", "administrator email")
	flags.StringVar(&opts.password, "password", getenv("FRANCHISE_BOOTSTRAP_PASSWORD"), "administrator password")
	flags.StringVar(&opts.firstName, "first-name", "", "administrator first name")
	flags.StringVar(&opts.lastName, "last-name", "", "administrator last name")
	flags.StringVar(&role, "role", string(models.RoleAdmin), "role of the new user")

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flags.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	opts.role = models.UserRole(strings.ToLower(strings.TrimSpace(role)))
	switch {
	case opts.databaseURL == "":
		return options{}, errors.New("--database-url or FRANCHISE_DATABASE_URL is required")
	case strings.TrimSpace(opts.tenant) == "":
		return options{}, errors.New("--tenant is required")
	case !strings.Contains(opts.email, "@"):
		return options{}, errors.New("--email must be an email address")
	case len(opts.password) < 8:
		return options{}, errors.New("password must be at least 8 characters")
	case !models.IsValidRole(opts.role):
		return options{}, fmt.Errorf("unknown role %q", role)
	}
	return opts, nil
}
