package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register /debug/pprof handlers
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	memorybroker "github.com/lawnetwork/lawnet/broker/memory"
	redisbroker "github.com/lawnetwork/lawnet/broker/redis"

	echoapi "github.com/lawnetwork/lawnet/apps/api/echo"
	"github.com/lawnetwork/lawnet/core"
	"github.com/lawnetwork/lawnet/core/access"
	"github.com/lawnetwork/lawnet/core/submission"
	emailsvc "github.com/lawnetwork/lawnet/services/email"
	logsvc "github.com/lawnetwork/lawnet/services/logger"
	"github.com/lawnetwork/lawnet/storage/database"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	grantRepo := database.NewGrantRepository(db)
	subRepo := database.NewSubmissionRepository(db)
	planRepo := database.NewPlanRepository(db)
	settingsRepo := database.NewSettingsRepository(db)

	// set up the propagation broker; redis when running multiple nodes
	var brk access.Broker
	if conf.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		brk = redisbroker.NewBroker(rdb, "", conf.Server.EventQueueSize)
	} else {
		brk = memorybroker.NewHub(conf.Server.EventQueueSize)
	}
	defer func() { _ = brk.Close() }()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	accessSvc := access.NewService(grantRepo)
	subSvc := submission.NewService(subRepo, accessSvc, planRepo, settingsRepo, brk, mailSvc, conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator, access.FeatureKinds)

	// =========================================================================
	// Start Expired-Grant Sweep
	//
	// The sweep only reclaims storage; reads lazily treat expired rows
	// as absent, so a missed run never grants stale access.

	sched := cron.New()
	if _, err = sched.AddFunc(conf.SweepSchedule, func() {
		count, serr := accessSvc.SweepExpired(context.Background())
		if serr != nil {
			logger.Error("sweeping expired grants", serr)
			return
		}
		if count > 0 {
			logger.Info(fmt.Sprintf("swept %d expired grants", count))
		}
	}); err != nil {
		logger.Fatal(fmt.Sprintf("scheduling sweep: %v", err), err)
	}
	sched.Start()
	defer sched.Stop()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if derr := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); derr != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", derr), derr)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			AccessSvc:     accessSvc,
			SubmissionSvc: subSvc,
			PlanRepo:      planRepo,
			Broker:        brk,
			Validate:      validate,
			Translator:    translator,
			StatusCheck: func(ctx context.Context) error {
				return database.StatusCheck(ctx, db)
			},
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
