package database

import (
	"AgencyTrack-Backend/internal/domain"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate runs GORM auto-migrations for all domain models.
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("starting database auto-migration")

	// Order matters because of foreign keys.
	models := []interface{}{
		&domain.Agency{},
		&domain.Service{},
		&domain.TrackingLink{},
		&domain.Visit{},
		&domain.Session{},
		&domain.Conversion{},
		&domain.LineProfile{},
	}

	for i, model := range models {
		modelName := fmt.Sprintf("%T", model)
		log.Info("migrating model",
			zap.String("model", modelName),
			zap.Int("step", i+1),
			zap.Int("total", len(models)))

		if err := db.AutoMigrate(model); err != nil {
			log.Error("failed to migrate model",
				zap.String("model", modelName),
				zap.Error(err))
			return fmt.Errorf("failed to migrate model %s: %w", modelName, err)
		}
	}

	log.Info("database auto-migration completed successfully", zap.Int("migrated_models", len(models)))
	return nil
}

// SeedData inserts the tracked services when the services table is empty.
func SeedData(db *gorm.DB, log *zap.Logger) error {
	log.Info("starting database seeding")

	var count int64
	db.Model(&domain.Service{}).Count(&count)
	if count > 0 {
		log.Info("services already exist, skipping seeding", zap.Int64("existing_count", count))
		return nil
	}

	services := []domain.Service{
		{
			Code:           "taskmate",
			Name:           "TaskMate AI",
			Domain:         toStr("taskmateai.net"),
			PenaltyDomains: domain.StringList{"taskmateai.net", "agency.ikemen.ltd", "ikemen.ltd"},
			IsActive:       true,
		},
		{
			Code:           "subsidy",
			Name:           "Subsidy Navigator",
			Domain:         toStr("subsidy-navigator.jp"),
			PenaltyDomains: domain.StringList{"subsidy-navigator.jp"},
			IsActive:       true,
		},
	}

	if err := db.Create(&services).Error; err != nil {
		log.Error("failed to seed services", zap.Error(err))
		return fmt.Errorf("failed to seed services: %w", err)
	}

	log.Info("database seeding completed successfully", zap.Int("services_created", len(services)))
	return nil
}

// toStr returns a pointer to a string, helper for nullable columns.
func toStr(val string) *string {
	return &val
}
