package routes

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lambdawarden/lambdawarden/internal/account"
	"github.com/lambdawarden/lambdawarden/internal/accounts"
	"github.com/lambdawarden/lambdawarden/internal/config"
	"github.com/lambdawarden/lambdawarden/internal/logging"
	"github.com/lambdawarden/lambdawarden/internal/login"
	"github.com/lambdawarden/lambdawarden/internal/middleware"
	"github.com/lambdawarden/lambdawarden/internal/notify"
	"github.com/lambdawarden/lambdawarden/internal/tokens"
	"github.com/lambdawarden/lambdawarden/internal/twofactor"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Store overrides the store derived from DB. Tests set it.
	Store accounts.Store
	// Notifier defaults to a logging notifier.
	Notifier notify.Notifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	store, err := resolveStore(d)
	if err != nil {
		return err
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notify.NewLoggerNotifier(d.Logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	issuer := tokens.NewIssuer(d.Cfg.AccessTokenTTL, d.Cfg.AccessTokenSkew)
	loader := tokens.NewLoader(store, d.Logger)

	dispatcher := login.NewDispatcher(store, issuer, notifier, d.Logger)
	accountSvc := account.NewService(store, issuer, !d.Cfg.DisableRegistration)
	twoFactorSvc := twofactor.NewService(store, d.Cfg.TOTPIssuer, notifier, d.Logger)

	RegisterIdentityRoutes(app, login.NewHandler(dispatcher),
		middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttemptsPerMinute, d.Logger))
	RegisterAccountRoutes(app, account.NewHandler(accountSvc), middleware.Session(loader))
	RegisterAdminRoutes(app, twofactor.NewHandler(twoFactorSvc), d.Cfg.AdminToken)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(http.StatusNotFound).SendString("Not Found")
	})
	return nil
}

func resolveStore(d Deps) (accounts.Store, error) {
	switch {
	case d.Store != nil:
		return d.Store, nil
	case d.DB != nil:
		return accounts.NewPostgresStore(d.DB), nil
	case d.Cfg.IsDev():
		if d.Logger != nil {
			d.Logger.Warn("no database configured, using in-memory store")
		}
		return accounts.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
}
