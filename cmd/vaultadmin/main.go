// Command vaultadmin runs operator tasks against the identity store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
	"github.com/lambdawarden/lambdawarden/internal/config"
	"github.com/lambdawarden/lambdawarden/internal/infra"
	"github.com/lambdawarden/lambdawarden/internal/kdf"
	"github.com/lambdawarden/lambdawarden/internal/logging"
	"github.com/lambdawarden/lambdawarden/internal/notify"
	"github.com/lambdawarden/lambdawarden/internal/twofactor"
)

const usage = `usage: vaultadmin <command> [flags]

commands:
  hash          print the master-password hash a client would send
  2fa-setup     start two-factor enrollment for a user
  2fa-complete  confirm two-factor enrollment with a code
  migrate       apply database migrations
`

var errUsage = errors.New("usage")

// env holds what commands need beyond their flags. Tests swap openStore.
type env struct {
	stdout    io.Writer
	stderr    io.Writer
	logger    *slog.Logger
	cfg       config.Config
	openStore func(ctx context.Context) (accounts.Store, func(), error)
	migrate   func(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	e := &env{
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: logging.NewWithWriter(os.Stderr, cfg.LogLevel),
		cfg:    cfg,
	}
	e.openStore = func(ctx context.Context) (accounts.Store, func(), error) {
		pool, err := connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return accounts.NewPostgresStore(pool), pool.Close, nil
	}
	e.migrate = func(ctx context.Context) error {
		pool, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		return infra.Migrate(ctx, pool)
	}

	os.Exit(run(ctx, e, os.Args[1:]))
}

func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL must be set")
	}
	return infra.NewPostgresPool(ctx, cfg.DatabaseURL)
}

func run(ctx context.Context, e *env, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(e.stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "hash":
		err = runHash(e, args[1:])
	case "2fa-setup":
		err = runSetup(ctx, e, args[1:])
	case "2fa-complete":
		err = runComplete(ctx, e, args[1:])
	case "migrate":
		err = e.migrate(ctx)
		if err == nil {
			fmt.Fprintln(e.stdout, "migrations applied")
		}
	case "help", "-h", "--help":
		fmt.Fprint(e.stdout, usage)
		return 0
	default:
		fmt.Fprintf(e.stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case errors.Is(err, errUsage):
		return 2
	case err != nil:
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func runHash(e *env, args []string) error {
	fs := newFlagSet(e, "hash")
	email := fs.String("email", "", "account e-mail, used as salt")
	password := fs.String("password", "", "master password")
	iterations := fs.Int("iterations", accounts.DefaultKdfIterations, "PBKDF2 iterations")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *email == "" || *password == "" {
		fmt.Fprintln(e.stderr, "-email and -password are required")
		return errUsage
	}

	hash, err := kdf.MasterPasswordHash(*password, *email, *iterations)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, hash)
	return nil
}

func runSetup(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "2fa-setup")
	email := fs.String("email", "", "account e-mail")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	svc, closeStore, err := e.twoFactor(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	prov, err := svc.Setup(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "secret: %s\nurl: %s\nqr: %s\n", prov.Secret, prov.URL, prov.QRCode)
	return nil
}

func runComplete(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "2fa-complete")
	email := fs.String("email", "", "account e-mail")
	code := fs.String("code", "", "six digit code from the authenticator")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	svc, closeStore, err := e.twoFactor(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := svc.Complete(ctx, *email, *code); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, twofactor.CompletedMessage)
	return nil
}

func (e *env) twoFactor(ctx context.Context) (*twofactor.Service, func(), error) {
	store, closeStore, err := e.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return twofactor.NewService(store, e.cfg.TOTPIssuer, notify.NewLoggerNotifier(e.logger), e.logger), closeStore, nil
}
