package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scribeline/meter_api/model"
)

// AuditDbService persists the quota audit trail. Sqlite by default;
// DB_DRIVER=postgres switches to a shared instance for multi-bot fleets.
type AuditDbService struct {
	context.DefaultService
	db *gorm.DB

	driver    string
	database  string
	retention time.Duration

	done chan struct{}
}

const AUDIT_DB_SVC = "audit_db_svc"

func (ds AuditDbService) Id() string {
	return AUDIT_DB_SVC
}

func (ds *AuditDbService) Configure(ctx *context.Context) error {
	ds.driver = strings.ToLower(os.Getenv("DB_DRIVER"))
	if ds.driver == "" {
		ds.driver = "sqlite"
	}

	ds.database = os.Getenv("DB_DATABASE")
	if ds.database == "" {
		ds.database = "data/meter.db"
	}

	retentionDays := 90
	if v := os.Getenv("AUDIT_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return fmt.Errorf("invalid AUDIT_RETENTION_DAYS: %s", v)
		}
		retentionDays = days
	}
	ds.retention = time.Duration(retentionDays) * 24 * time.Hour

	return ds.DefaultService.Configure(ctx)
}

// Start opens the connection and migrates any tables that have changed
// since last runtime.
func (ds *AuditDbService) Start() (err error) {
	var dial gorm.Dialector
	switch ds.driver {
	case "postgres":
		dsn := os.Getenv("POSTGRES_DSN")
		if dsn == "" {
			return fmt.Errorf("DB_DRIVER=postgres requires POSTGRES_DSN")
		}
		dial = postgres.Open(dsn)
	case "sqlite":
		dial = sqlite.Open(ds.database)
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", ds.driver)
	}

	ds.db, err = gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return err
	}

	if err = ds.db.AutoMigrate(&model.UsageAudit{}); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	ds.done = make(chan struct{})
	go ds.retentionLoop()

	log.Println("Audit database connected and migrated successfully")
	return nil
}

func (ds *AuditDbService) Shutdown() {
	if ds.done != nil {
		close(ds.done)
	}
}

func (ds *AuditDbService) retentionLoop() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ds.CleanupOldRecords(ds.retention); err != nil {
				log.WithError(err).Warn("Audit retention cleanup failed")
			}
		case <-ds.done:
			return
		}
	}
}

func (ds *AuditDbService) RecordUsage(audit *model.UsageAudit) error {
	if ds == nil || ds.db == nil {
		return nil
	}
	return ds.db.Create(audit).Error
}

func (ds *AuditDbService) TotalChecks() (int64, error) {
	var total int64
	err := ds.db.Model(&model.UsageAudit{}).Count(&total).Error
	return total, err
}

func (ds *AuditDbService) DeniedChecks() (int64, error) {
	var denied int64
	err := ds.db.Model(&model.UsageAudit{}).Where("allowed = ?", false).Count(&denied).Error
	return denied, err
}

func (ds *AuditDbService) FailOpenChecks() (int64, error) {
	var failOpen int64
	err := ds.db.Model(&model.UsageAudit{}).Where("fail_open = ?", true).Count(&failOpen).Error
	return failOpen, err
}

// CleanupOldRecords drops audit rows older than the retention window.
func (ds *AuditDbService) CleanupOldRecords(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return ds.db.Where("created_at < ?", cutoff).Delete(&model.UsageAudit{}).Error
}

func (ds *AuditDbService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound
		errorType = "NOT_FOUND"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		statusCode = http.StatusConflict
		errorType = "CONFLICT"
	case errors.Is(err, gorm.ErrInvalidTransaction):
		statusCode = http.StatusInternalServerError
		errorType = "TRANSACTION_ERROR"
	default:
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			statusCode = http.StatusConflict
			errorType = "UNIQUE_CONSTRAINT"
		} else if strings.Contains(err.Error(), "no such table") {
			statusCode = http.StatusInternalServerError
			errorType = "SCHEMA_ERROR"
		} else {
			statusCode = http.StatusInternalServerError
			errorType = "INTERNAL_ERROR"
		}
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": statusCode,
		"error_type":  errorType,
		"error":       err.Error(),
	})

	if statusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return fmt.Errorf("%s: %w", errorType, err)
}
