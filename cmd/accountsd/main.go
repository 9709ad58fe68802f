package main

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"log"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

//go:embed views
var viewsFS embed.FS

func main() {
	cfg := envConfig{}

	db, err := openDatabase()
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := accounts.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	repo := accounts.NewRepositoryManager(db)

	sink := activityLogSink{}

	provider := accounts.NewAccountProvider(repo.Accounts())

	auther := accounts.NewAuthenticator(provider, cfg).
		WithActivitySink(sink)

	httpAuth, err := accounts.NewHTTPAuthenticator(auther, cfg)
	if err != nil {
		log.Fatalf("http authenticator: %v", err)
	}

	dispatcher := accounts.NewMailDispatcher(buildMailer(), nil)

	registrar := accounts.NewRegisterAccountHandler(repo,
		accounts.WithRegistrationMailer(dispatcher),
		accounts.WithRegistrationActivitySink(sink),
		accounts.WithConfirmationBaseURL(getenv("ACCOUNTS_CONFIRM_BASE_URL", "http://localhost:3000/confirm")),
	)

	confirmer := accounts.NewConfirmAccountHandler(repo,
		accounts.WithConfirmationActivitySink(sink),
	)

	engine := django.NewPathForwardingFileSystem(http.FS(viewsFS), "/views", ".html")

	app := fiber.New(fiber.Config{
		Views:       engine,
		ReadTimeout: time.Second * 15,
	})

	app.Use(accounts.NewGatekeeper(accounts.GatekeeperConfig{
		Auther:       httpAuth,
		Accounts:     repo.Accounts(),
		ActivitySink: sink,
		SkipPaths:    []string{"/login", "/register", "/confirm", "/logout", "/favicon.ico"},
	}))

	accounts.RegisterAuthRoutes(app,
		accounts.WithAuthControllerRepo(repo),
		accounts.WithAuthControllerAuther(httpAuth),
		accounts.WithAuthControllerRegistrar(registrar),
		accounts.WithAuthControllerConfirmer(confirmer),
	)

	admin := app.Group("/admin", accounts.RequireSession(httpAuth, "/login"))
	accounts.RegisterRosterRoutes(admin,
		accounts.WithRosterControllerRepo(repo),
		accounts.WithRosterControllerHandlers(
			accounts.NewBlockAccountsHandler(repo, accounts.WithRosterOpsActivitySink(sink)),
			accounts.NewUnblockAccountsHandler(repo, accounts.WithRosterOpsActivitySink(sink)),
			accounts.NewDeleteAccountsHandler(repo, accounts.WithRosterOpsActivitySink(sink)),
			accounts.NewPurgeUnverifiedHandler(repo, accounts.WithRosterOpsActivitySink(sink)),
		),
	)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/admin/accounts", fiber.StatusFound)
	})

	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(time.Second * 10)
	}()

	addr := getenv("ACCOUNTS_HTTP_ADDR", ":3000")
	if err := app.Listen(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func openDatabase() (*bun.DB, error) {
	dsn := getenv("ACCOUNTS_DATABASE_DSN", "file:accounts.db?cache=shared&_pragma=foreign_keys(1)")

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(1)

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func buildMailer() accounts.Mailer {
	addr := os.Getenv("ACCOUNTS_SMTP_ADDR")
	if addr == "" {
		return nil
	}

	from := getenv("ACCOUNTS_SMTP_FROM", "no-reply@localhost")

	var auth smtp.Auth
	if user := os.Getenv("ACCOUNTS_SMTP_USER"); user != "" {
		host := addr
		if i := strings.Index(addr, ":"); i > 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", user, os.Getenv("ACCOUNTS_SMTP_PASSWORD"), host)
	}

	return &accounts.SMTPMailer{
		Addr: addr,
		From: from,
		Auth: auth,
	}
}

// activityLogSink writes normalized audit events to stdout; a real deployment
// would forward them to its telemetry pipeline.
type activityLogSink struct{}

func (activityLogSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	normalized := activitymap.Normalize(event)

	payload, err := json.Marshal(normalized)
	if err != nil {
		return err
	}

	log.Printf("[activity] %s", payload)
	return nil
}
