package main

import (
	"context"
	"log"

	infra "github.com/pot-code/course-progress/internal/infrastructure"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/uuid"
	"github.com/pot-code/course-progress/internal/interfaces/rest"
	"github.com/pot-code/course-progress/internal/learner"
	"github.com/pot-code/course-progress/internal/lesson"
	"github.com/pot-code/course-progress/internal/progress"
	"github.com/pot-code/course-progress/internal/progression"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath:   option.Logging.FilePath,
		Level:      option.Logging.Level,
		Env:        option.Env,
		AppID:      option.AppID,
		MaxSize:    option.Logging.MaxSize,
		MaxBackups: option.Logging.MaxBackups,
		MaxAge:     option.Logging.MaxAge,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	defer logger.Sync()

	dbConn, err := driver.GetDBConnection(&driver.DBConfig{
		User:     option.Database.User,
		Password: option.Database.Password,
		MaxConn:  option.Database.MaxConn,
		Protocol: option.Database.Protocol,
		Driver:   option.Database.Driver,
		Host:     option.Database.Host,
		Port:     option.Database.Port,
		Query:    option.Database.Query,
		Schema:   option.Database.Schema,
	})
	if err != nil {
		log.Fatalf("Failed to create DB connection: %s\n", err)
	}
	defer dbConn.Close(context.Background())
	logger.Debug("Create db connection instance", zap.String("db.driver", option.Database.Driver),
		zap.String("db.schema", option.Database.Schema),
		zap.String("db.host", option.Database.Host),
	)

	kv := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password)
	defer kv.Close()

	UUIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)

	LessonRepo := lesson.NewLessonRepository(dbConn)
	LessonUseCase := lesson.NewLessonUseCase(LessonRepo)

	ProgressRepo := progress.NewCachedRepository(progress.NewProgressRepository(dbConn), kv, option.Cache.ProgressTTL)
	ProgressUseCase := progress.NewProgressUseCase(ProgressRepo)

	LearnerRepo := learner.NewLearnerRepository(dbConn, UUIDGenerator)
	LearnerUseCase := learner.NewLearnerUseCase(LearnerRepo,
		option.Security.MaxLoginAttempts,
		option.Security.RetryTimeout,
	)

	rule, err := progression.ParseRule(option.Progression.UnlockRule)
	if err != nil {
		log.Fatal(err)
	}
	engine := progression.NewEngine(rule, option.Progression.WatchThreshold, option.Progression.DwellTime)
	Registry := progression.NewRegistry(LessonUseCase, ProgressUseCase, engine, progression.SystemClock, logger)
	scheduler := cron.New()
	if _, err := Registry.ScheduleEviction(scheduler, option.Progression.EvictionSchedule, option.Progression.SessionIdle); err != nil {
		logger.Fatal("invalid session eviction schedule", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	if err := rest.Serve(dbConn, kv, option, LearnerUseCase, ProgressUseCase, Registry, logger); err != nil {
		logger.Error("Server stopped", zap.Error(err))
	}
}
