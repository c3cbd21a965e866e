package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/kursadbilgin/dncl-gateway/internal/repository"
)

func createRemovalsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_plc_dncl_removed",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RemovalModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_plc_dncl_removed_phone_created ON plc_dncl_removed (phone_number, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RemovalModel{})
		},
	}
}
