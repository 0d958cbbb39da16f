package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/example/studyplan/internal/api"
	"github.com/example/studyplan/internal/bot"
	"github.com/example/studyplan/internal/config"
	"github.com/example/studyplan/internal/database"
	"github.com/example/studyplan/internal/excel"
	"github.com/example/studyplan/internal/logger"
	"github.com/example/studyplan/internal/notifications"
	"github.com/example/studyplan/internal/rewards"
	"github.com/example/studyplan/internal/scheduler"
	"github.com/example/studyplan/internal/study"
)

const tokenTTL = 30 * 24 * time.Hour

type app struct {
	cfg           *config.Config
	log           *logger.Logger
	db            *sqlx.DB
	ledger        *rewards.Ledger
	study         *study.Service
	notifications *notifications.Service
}

func main() {
	importFile := flag.String("import", "", "Import topics from an .xlsx or .csv file and exit")
	subjectID := flag.Int64("subject", 0, "Subject receiving imported topics")
	userID := flag.Int64("user", 0, "Owner of the subject for -import, or user for -token")
	scanOnce := flag.Bool("scan-once", false, "Run one due review scan and exit")
	createUser := flag.String("create-user", "", "Create a user with this name and exit")
	email := flag.String("email", "", "Email for -create-user")
	issueToken := flag.Bool("token", false, "Print an access token for -user and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(database.Options{
		DBType:      cfg.DBType,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	a := newApp(cfg, log, db)

	switch {
	case *importFile != "":
		err = a.importTopics(ctx, *importFile, *userID, *subjectID)
	case *createUser != "":
		err = a.createUser(ctx, *createUser, *email)
	case *issueToken:
		err = a.printToken(*userID)
	case *scanOnce:
		err = a.scanOnce(ctx)
	default:
		err = a.serve(ctx)
	}
	if err != nil {
		log.Error("exiting with error", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, log *logger.Logger, db *sqlx.DB) *app {
	ledger := rewards.NewLedger(db, log.With("component", "ledger"))
	return &app{
		cfg:    cfg,
		log:    log,
		db:     db,
		ledger: ledger,
		study: study.NewService(db, ledger, log.With("component", "study"), study.Config{
			StoreTimeout: cfg.StoreTimeout,
		}),
		notifications: notifications.NewService(db, cfg.StoreTimeout, nil),
	}
}

func (a *app) newScheduler(notifier scheduler.Notifier) *scheduler.Scheduler {
	scanner := scheduler.NewScanner(a.db, a.notifications, notifier, a.log.With("component", "scanner"), scheduler.ScannerConfig{
		Location: a.cfg.ReviewLocation,
		Timeout:  a.cfg.ScanTimeout,
	})
	return scheduler.New(scanner, a.ledger, a.log.With("component", "scheduler"), scheduler.Config{
		ScanInterval:      a.cfg.ScanInterval,
		InitialDelay:      a.cfg.ScanInitialDelay,
		ReconcileInterval: a.cfg.ReconcileInterval,
	})
}

// serve runs the HTTP API, the scheduler and the optional Telegram bot until ctx is done.
func (a *app) serve(ctx context.Context) error {
	if a.cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to serve the API")
	}
	if !a.cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

	g, ctx := errgroup.WithContext(ctx)

	var notifier scheduler.Notifier
	if a.cfg.TelegramBotToken != "" {
		b, err := bot.New(a.cfg.TelegramBotToken, database.NewUserRepository(a.db), a.notifications, a.study, a.log.With("component", "bot"))
		if err != nil {
			// reminders still land in the notification store
			a.log.Warn("telegram bot disabled", "error", err)
		} else {
			notifier = b
			g.Go(func() error { return b.Run(ctx) })
		}
	}

	if a.cfg.EnableScheduler {
		s := a.newScheduler(notifier)
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer s.Stop()
	}

	router := api.NewRouter(api.RouterConfig{
		Handler:   api.NewHandler(a.study, a.notifications, a.db),
		JWTSecret: a.cfg.JWTSecret,
		Log:       a.log.With("component", "http"),
	})
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		a.log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *app) scanOnce(ctx context.Context) error {
	res, err := a.newScheduler(nil).RunManualCheck(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("due=%d created=%d skipped=%d unresolved=%d\n", res.Due, res.Created, res.Skipped, res.Unresolved)
	return nil
}

func (a *app) importTopics(ctx context.Context, path string, userID, subjectID int64) error {
	if userID == 0 || subjectID == 0 {
		return errors.New("-import needs -user and -subject")
	}
	cfg := excel.DefaultImportConfig()
	cfg.FilePath = path
	cfg.UserID = userID
	cfg.SubjectID = subjectID

	result, err := excel.ImportTopics(ctx, a.study, cfg)
	if err != nil {
		return err
	}
	a.log.Info("import finished",
		"processed", result.TotalProcessed,
		"created", result.Created,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	for _, e := range result.Errors {
		fmt.Println(e)
	}
	return nil
}

func (a *app) createUser(ctx context.Context, name, email string) error {
	user, err := a.study.CreateUser(ctx, study.NewUser{Name: name, Email: email})
	if err != nil {
		return err
	}
	fmt.Printf("created user %d\n", user.ID)
	if a.cfg.JWTSecret != "" {
		return a.printToken(user.ID)
	}
	return nil
}

func (a *app) printToken(userID int64) error {
	if userID == 0 || a.cfg.JWTSecret == "" {
		return errors.New("-token needs -user and JWT_SECRET")
	}
	token, err := api.IssueToken(a.cfg.JWTSecret, userID, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
