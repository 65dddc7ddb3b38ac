package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rechargehub/pkg/config"
	"rechargehub/pkg/db"
	"rechargehub/pkg/logger"
	"rechargehub/services/account"
	"rechargehub/services/activity"
	"rechargehub/services/catalog"
	"rechargehub/services/job"
	"rechargehub/services/offer"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		fx.Invoke(migrate),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

func migrate(gormDB *gorm.DB, shutdowner fx.Shutdowner) error {
	err := gormDB.AutoMigrate(
		&account.User{},
		&catalog.Operator{},
		&catalog.Product{},
		&catalog.SupplierProduct{},
		&activity.TopupRequest{},
		&activity.WalletTransaction{},
		&offer.Offer{},
		&offer.EligibilityRule{},
		&offer.OfferProduct{},
		&offer.OfferAllowedUser{},
		&offer.OfferAllowedRole{},
		&offer.SegmentMember{},
		&offer.Redemption{},
		&job.Job{},
	)
	if err != nil {
		zap.L().Error("migration failed", zap.Error(err))
		return err
	}

	zap.L().Info("migration completed")
	return shutdowner.Shutdown()
}
