package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	redisCache "github.com/aniladanir/hospital-messenger-service/internal/cache/redis"
	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	httpHandler "github.com/aniladanir/hospital-messenger-service/internal/handler/http"
	"github.com/aniladanir/hospital-messenger-service/internal/logging"
	"github.com/aniladanir/hospital-messenger-service/internal/persistant/postgresql"
	"github.com/aniladanir/hospital-messenger-service/internal/phone"
	"github.com/aniladanir/hospital-messenger-service/internal/provider"
	"github.com/aniladanir/hospital-messenger-service/internal/queue"
	"github.com/aniladanir/hospital-messenger-service/internal/ratelimit"
	batchRepo "github.com/aniladanir/hospital-messenger-service/internal/repository/batch"
	conversationRepo "github.com/aniladanir/hospital-messenger-service/internal/repository/conversation"
	lockStore "github.com/aniladanir/hospital-messenger-service/internal/repository/lock"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/memory"
	recipientRepo "github.com/aniladanir/hospital-messenger-service/internal/repository/recipient"
	settingsRepo "github.com/aniladanir/hospital-messenger-service/internal/repository/settings"
	"github.com/aniladanir/hospital-messenger-service/internal/resolver"
	"github.com/aniladanir/hospital-messenger-service/internal/service"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

var (
	configFile = flag.String("config", "config.json", "config file path (json or yaml)")
)

type stores struct {
	db    *gorm.DB
	redis *redis.Client

	recipients    recipientRepo.Repository
	batches       batchRepo.Repository
	locks         lockStore.Store
	conversations conversationRepo.Repository
	settings      settingsRepo.Repository
}

func main() {
	// create root context
	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	// listen for terminate signal
	notifyCtx, stop := signal.NotifyContext(appCtx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	// parse flags
	flag.Parse()

	// a missing .env file is fine
	_ = godotenv.Load()

	// parse config
	config, err := ReadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	// setup logger
	logger := logging.Init(config.Log)

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		log.Fatalf("failed to load timezone: %v", err)
	}

	// initialize external dependencies
	st, err := initExternalDependencies(notifyCtx, config)
	if err != nil {
		log.Fatalf("failed to initialize external dependencies: %v", err)
	}
	values := settingsRepo.NewValues(st.settings)

	// rate gate
	ratePerMinute := values.Int(notifyCtx, domain.SettingRateLimitPerMinute, config.Dispatch.RateLimitPerMinute)
	var gate ratelimit.Gate
	if st.redis != nil {
		gate = ratelimit.NewRedis(st.redis, config.WhatsApp.PhoneNumberID, ratePerMinute, time.Minute)
	} else {
		gate = ratelimit.NewLocal(ratePerMinute, time.Minute)
	}

	// provider client
	var client provider.Client
	if config.WhatsApp.DryRun {
		logger.Warn("whatsapp dry run enabled, messages are logged and not sent")
		client = provider.DryRun{}
	} else {
		client = provider.NewWhatsAppClient(provider.WhatsAppConfig{
			BaseURL:       config.WhatsApp.BaseURL,
			PhoneNumberID: config.WhatsApp.PhoneNumberID,
			AccessToken:   config.WhatsApp.AccessToken,
			Timeout:       config.Dispatch.SendTimeout,
		})
	}

	// execution substrate
	var jobs queue.Queue
	switch config.Queue {
	case QueueKafka:
		jobs, err = queue.NewKafka(config.Kafka, logger.With(slog.String("component", "kafkaQueue")))
		if err != nil {
			log.Fatalf("failed to initialize kafka queue: %v", err)
		}
	default:
		jobs = queue.NewPool(config.Workers, config.QueueBuffer, logger.With(slog.String("component", "workerPool")))
	}

	normalizer := phone.NewNormalizer(config.Phone.DefaultCountryCode)
	res := resolver.New(st.recipients, normalizer,
		resolver.WithLocation(loc),
		resolver.WithLogger(logger.With(slog.String("component", "resolver"))))
	processLock := service.NewProcessLock(st.locks, st.batches, logger.With(slog.String("component", "processLock")))

	// init batch controller
	controller := service.NewController(service.ControllerDeps{
		Recipients: st.recipients,
		Batches:    st.batches,
		Lock:       processLock,
		Resolver:   res,
		Queue:      jobs,
		Values:     values,
	}, service.ControllerConfig{
		MaxPerDay:         config.Dispatch.MaxPerDay,
		ClaimTimeout:      config.Dispatch.ClaimTimeout,
		ReminderDaysAhead: config.Reminders.DaysAheadManual,
	}, logger.With(slog.String("component", "batchController")))

	// init dispatcher
	dispatcher, err := service.NewDispatcher(service.DispatcherDeps{
		Recipients:    st.recipients,
		Batches:       st.batches,
		Conversations: st.conversations,
		Lock:          processLock,
		Finalizer:     controller,
		Gate:          gate,
		Client:        client,
		Normalizer:    normalizer,
		Composers:     service.DefaultComposers(loc),
	}, service.DispatcherConfig{
		MaxAttempts: config.Dispatch.MaxAttempts,
		SendTimeout: config.Dispatch.SendTimeout,
	}, logger.With(slog.String("component", "dispatcher")))
	if err != nil {
		log.Fatalf("failed to initiate dispatcher: %v", err)
	}

	// init reminder scheduler
	reminders, err := service.NewReminders(controller, res, values, service.RemindersConfig{
		Interval:           config.Reminders.Interval,
		ReconcileInterval:  config.Reminders.ReconcileInterval,
		RunOnStart:         config.Reminders.RunOnStart,
		DaysAheadScheduled: config.Reminders.DaysAheadScheduled,
		DaysAheadManual:    config.Reminders.DaysAheadManual,
		TemplateName:       config.Reminders.TemplateName,
		LanguageCode:       config.Reminders.LanguageCode,
	}, logger.With(slog.String("component", "reminders")))
	if err != nil {
		log.Fatalf("failed to initiate reminder scheduler: %v", err)
	}
	if config.Reminders.DaysAheadScheduled != config.Reminders.DaysAheadManual {
		logger.Warn("scheduled and manual reminder runs look at different days",
			"daysAheadScheduled", config.Reminders.DaysAheadScheduled,
			"daysAheadManual", config.Reminders.DaysAheadManual)
	}

	// init http handler
	httpHandler := httpHandler.NewHttpHandler(httpHandler.Config{
		Addr:         fmt.Sprintf(":%d", config.HttpPort),
		APIKey:       config.AdminAPIKey,
		AllowOrigins: config.AllowOrigins,
	}, controller, reminders, st.settings, logger.With(slog.String("component", "httpHandler")))
	if config.AdminAPIKey == "" {
		logger.Warn("admin_api_key is not set, the admin api is open")
	}

	// workers keep their context through shutdown so in-flight sends can finish
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	wg := sync.WaitGroup{}
	workersDone := make(chan struct{})
	wg.Go(func() {
		defer close(workersDone)
		if err := jobs.Run(workerCtx, dispatcher); err != nil {
			logger.Error("queue stopped with an error", "error", err.Error())
		}
	})

	reminders.Start()

	// run http handler
	wg.Go(func() {
		logger.Info("http server listening", "port", config.HttpPort)
		if err := httpHandler.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server encountered with an error and closed", "error", err.Error())
		}
		// cancel app context if http handler fails
		appCtxCancel()
	})

	// graceful shutdown
	wg.Go(func() {
		<-notifyCtx.Done()
		logger.Info("application shutting down...")

		shutDownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		reminders.Stop()
		if err := httpHandler.Shutdown(shutDownCtx); err != nil {
			logger.Error("failed to shut down http server", "error", err.Error())
		}
		_ = jobs.Close()
		select {
		case <-workersDone:
		case <-shutDownCtx.Done():
			logger.Warn("workers did not stop in time, interrupting sends")
			workerCancel()
			<-workersDone
		}
		closeExternalDependencies(st, logger)
	})

	wg.Wait()
	os.Exit(0)
}

func initExternalDependencies(ctx context.Context, config *Config) (*stores, error) {
	st := new(stores)

	// initialize cache
	if config.RedisAddr != "" {
		client, err := redisCache.NewClient(ctx, redisCache.Options{Addr: config.RedisAddr, Password: config.RedisPassword})
		if err != nil {
			return nil, err
		}
		st.redis = client
	}

	if config.Storage == StorageMemory {
		slog.Warn("using in-memory storage, state is lost on restart")
		st.recipients = memory.NewRecipients()
		st.batches = memory.NewBatches()
		st.locks = memory.NewLocks()
		st.conversations = memory.NewConversations()
		st.settings = memory.NewSettings()
		return st, nil
	}

	// initialize database
	db, err := postgresql.Initialize(ctx, postgresql.Options{
		ConnString: config.DbConnString,
		LogQueries: config.DbLogQueries,
	}, postgresql.Models())
	if err != nil {
		if st.redis != nil {
			_ = st.redis.Close()
		}
		return nil, err
	}
	st.db = db

	var settingsCache *redisCache.RedisCache
	if st.redis != nil {
		settingsCache = redisCache.NewRedisCache(st.redis, "hms:")
	}

	st.recipients = recipientRepo.NewRecipientRepository(db)
	st.batches = batchRepo.NewBatchRepository(db)
	st.locks = lockStore.NewLockStore(db)
	st.conversations = conversationRepo.NewConversationRepository(db)
	if settingsCache != nil {
		st.settings = settingsRepo.NewSettingsRepository(db, settingsCache)
	} else {
		st.settings = settingsRepo.NewSettingsRepository(db, nil)
	}
	return st, nil
}

func closeExternalDependencies(st *stores, logger *slog.Logger) {
	if st.redis != nil {
		if err := st.redis.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err.Error())
		}
	}
	if st.db != nil {
		if err := postgresql.Close(st.db); err != nil {
			logger.Error("failed to close database", "error", err.Error())
		}
	}
}
