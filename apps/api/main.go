package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	echoapi "github.com/trezcool/masomo-admin/apps/api/echo"
	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/featureswitch"
	emailsvc "github.com/trezcool/masomo-admin/services/email"
	"github.com/trezcool/masomo-admin/services/featurestatus"
	logsvc "github.com/trezcool/masomo-admin/services/logger"
	metricsvc "github.com/trezcool/masomo-admin/services/metrics"
	"github.com/trezcool/masomo-admin/storage/database"
	inmemdb "github.com/trezcool/masomo-admin/storage/database/inmem"
	sqlxrepos "github.com/trezcool/masomo-admin/storage/database/sqlx"
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

	gateLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "GATE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up storage
	var ruleRepo featureswitch.RuleRepository
	switch conf.Storage {
	case "postgres":
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				logger.Error("failed to close database", err)
			}
		}()
		ruleRepo = sqlxrepos.NewRuleRepository(db)
	default:
		logger.Info("using in-memory storage: rules are lost on restart")
		ruleRepo = inmemdb.NewRuleRepository(inmemdb.Open())
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(log.New(os.Stdout, "MAIL : ", log.LstdFlags), conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
	}
	ruleSvc := featureswitch.NewService(ruleRepo, mailSvc, conf.Mail.OpsEmail)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := metricsvc.NewProm("masomo", reg)

	// without a feature-status API configured, this process evaluates its own rules
	newClient := func(sess featureswitch.Session) featureswitch.Client { return ruleSvc.ClientFor(sess.SchoolID) }
	if conf.FeatureStatus.BaseURL != "" {
		newClient = featurestatus.NewClient(conf).ForSession
	}
	registry := featureswitch.NewRegistry(func(sess featureswitch.Session) *featureswitch.Resolver {
		return featureswitch.NewResolver(
			newClient(sess),
			featureswitch.WithTimeout(conf.FeatureStatus.Timeout),
			featureswitch.WithRootRole(conf.FeatureStatus.RootRole),
			featureswitch.WithLogger(gateLogger),
			featureswitch.WithMetrics(metrics),
		)
	}, conf.FeatureStatus.SessionTTL, metrics)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	featureswitch.InitValidators(validate, translator)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if conf.FeatureStatus.SessionTTL > 0 {
		go registry.Run(sweepCtx, conf.FeatureStatus.SessionTTL/2)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("gate_sessions", expvar.Func(func() interface{} { return registry.Len() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			RuleSvc:    ruleSvc,
			Registry:   registry,
			Metrics:    metrics,
			Gatherer:   reg,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
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

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}
