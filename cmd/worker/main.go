package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"rechargehub/pkg/config"
	"rechargehub/pkg/db"
	"rechargehub/pkg/logger"
	"rechargehub/pkg/redis"
	"rechargehub/pkg/task"
	"rechargehub/services/account"
	"rechargehub/services/activity"
	"rechargehub/services/job"
	"rechargehub/services/offer"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		fx.Provide(
			provideSnowflakeNode,
		),
		account.Module,
		activity.Module,
		job.Module,
		offer.Module,
		offer.TaskModule,
		fx.Invoke(registerHandlers),
		task.Server,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}

func registerHandlers(mux *asynq.ServeMux, svc *offer.Task) {
	mux.HandleFunc(offer.OfferBulkRedemption, svc.HandleBulkRedemptionTask)
}
