package main

import (
	"log"
	"os"

	memorybroker "github.com/lawnetwork/lawnet/broker/memory"
	redisbroker "github.com/lawnetwork/lawnet/broker/redis"
	"github.com/lawnetwork/lawnet/core"
	"github.com/lawnetwork/lawnet/core/access"
	"github.com/lawnetwork/lawnet/core/submission"
	emailsvc "github.com/lawnetwork/lawnet/services/email"
	"github.com/lawnetwork/lawnet/storage/database"
	goredis "github.com/redis/go-redis/v9"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()
	errAndDie(db.Ping())

	grantRepo := database.NewGrantRepository(db)
	subRepo := database.NewSubmissionRepository(db)
	planRepo := database.NewPlanRepository(db)
	settingsRepo := database.NewSettingsRepository(db)

	// decisions made here must still reach connected viewers; go
	// through redis when the API runs with it.
	var broker access.Broker
	if conf.Redis.Enabled {
		rdb := goredis.NewClient(&goredis.Options{Addr: conf.Redis.Addr, Password: conf.Redis.Password, DB: conf.Redis.DB})
		defer func() { _ = rdb.Close() }()
		broker = redisbroker.NewBroker(rdb, "", conf.Server.EventQueueSize)
	} else {
		broker = memorybroker.NewHub(conf.Server.EventQueueSize)
	}

	accessSvc := access.NewService(grantRepo)
	submissionSvc := submission.NewService(
		subRepo, accessSvc, planRepo, settingsRepo, broker,
		emailsvc.NewConsoleService(conf), conf, core.NopLogger{},
	)

	// start CLI
	cli := commandLine{
		db:            db,
		accessSvc:     accessSvc,
		submissionSvc: submissionSvc,
		planRepo:      planRepo,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
