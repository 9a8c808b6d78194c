package database

import (
	transcriptRepo "github.com/xpanvictor/voxcap/internal/repository/transcript"
	"gorm.io/gorm"
)

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&transcriptRepo.LineEntity{},
		&transcriptRepo.SummaryEntity{},
	)
}
