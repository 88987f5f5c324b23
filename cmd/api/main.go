package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/anjiri1684/studio_booking/allocator"
	config "github.com/anjiri1684/studio_booking/configs"
	"github.com/anjiri1684/studio_booking/database"
	"github.com/anjiri1684/studio_booking/handlers"
	"github.com/anjiri1684/studio_booking/jobs"
	"github.com/anjiri1684/studio_booking/ledger"
	applog "github.com/anjiri1684/studio_booking/logger"
	"github.com/anjiri1684/studio_booking/matcher"
	"github.com/anjiri1684/studio_booking/middleware"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/anjiri1684/studio_booking/observability"
	"github.com/anjiri1684/studio_booking/routes"
	"github.com/anjiri1684/studio_booking/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := applog.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("init tracer")
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	notify := notifications.Multi{
		notifications.NewEmailDispatcher(
			notifications.NewBrevoService(cfg.BrevoAPIKey, cfg.EmailSender, cfg.EmailSenderName), db, log),
	}
	if cfg.RabbitURL != "" {
		publisher, err := notifications.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange, log)
		if err != nil {
			log.WithError(err).Fatal("connect rabbitmq")
		}
		defer publisher.Close()
		notify = append(notify, publisher)
	}

	policy := cfg.Policy
	wallets := ledger.NewService(db, log, notify)
	studios := services.NewStudioService(db, log, policy, notify)
	availability := matcher.NewService(db, matcher.Policy{AllowWhenNoWindows: policy.AllowWhenNoWindows})
	bookings := services.NewBookingService(services.BookingDeps{
		DB:      db,
		Log:     log,
		Policy:  policy,
		Ledger:  wallets,
		Matcher: availability,
		Alloc:   allocator.NewService(db, log, wallets),
		Studios: studios,
		Notify:  notify,
	})

	c := cron.New(cron.WithLocation(policy.Location()))
	if err := jobs.Schedule(c, log, bookings, jobs.Schedules{
		Expiry:   cfg.SweepSchedule,
		Maturity: cfg.MaturitySchedule,
	}); err != nil {
		log.WithError(err).Fatal("schedule jobs")
	}
	c.Start()

	h := &handlers.Handler{
		Bookings: bookings,
		Studios:  studios,
		Profiles: services.NewProfileService(db),
		Ledger:   wallets,
		Matcher:  availability,
		Log:      log,
	}
	if cfg.CloudinaryURL != "" {
		h.Uploads, err = handlers.NewProofSigner(cfg.CloudinaryURL, cfg.ProofUploadDir)
		if err != nil {
			log.WithError(err).Fatal("init payment proof uploads")
		}
	}

	app := fiber.New(fiber.Config{
		AppName:       "Studio Booking",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *fiber.Error
			if errors.As(err, &e) {
				return c.Status(e.Code).JSON(fiber.Map{"error": e.Message, "code": e.Code})
			}
			return handlers.Fail(c, log, err)
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   policy.TimeZone,
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.Setup(app, h, middleware.Protected(cfg.JWTSecret))

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithField("addr", cfg.HTTPAddr).Info("server is running")
	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.WithError(err).Error("server stopped")
	}

	<-c.Stop().Done()
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(flushCtx); err != nil {
		log.WithError(err).Warn("tracer shutdown")
	}
}
