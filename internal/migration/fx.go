package migration

import (
	affiliationdomain "github.com/smallbiznis/affiliora/internal/affiliation/domain"
	auditdomain "github.com/smallbiznis/affiliora/internal/audit/domain"
	"github.com/smallbiznis/affiliora/internal/config"
	ledgerdomain "github.com/smallbiznis/affiliora/internal/ledger/domain"
	orderdomain "github.com/smallbiznis/affiliora/internal/order/domain"
	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	productdomain "github.com/smallbiznis/affiliora/internal/product/domain"
	sponsorshipdomain "github.com/smallbiznis/affiliora/internal/sponsorship/domain"
	subscriptiondomain "github.com/smallbiznis/affiliora/internal/subscription/domain"
	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType != "postgres" {
			// The embedded schema is postgres SQL; local sqlite/mysql setups
			// get the same tables from the models.
			log.Named("migrations").Info("running model migrations", zap.String("dialect", cfg.DBType))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

// Models lists every table owned by the service.
func Models() []any {
	return []any{
		&userdomain.User{},
		&productdomain.Product{},
		&sponsorshipdomain.Sponsorship{},
		&affiliationdomain.Affiliation{},
		&orderdomain.Order{},
		&orderdomain.Item{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
		&ledgerdomain.Transaction{},
		&subscriptiondomain.Subscription{},
		&auditdomain.AuditLog{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
