// Package audit persists rejected-request records and serves the aggregate
// stats behind the admin API. Recording is asynchronous and best-effort; a
// lost audit row never affects a verdict.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pollyhq/ratekeeper/internal/config"
	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/internal/domain/service"
	"github.com/pollyhq/ratekeeper/pkg/errors"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

var _ service.AuditService = (*Recorder)(nil)

// recordTimeout bounds one background insert plus event publish.
const recordTimeout = 5 * time.Second

// recentActivityLimit caps the raw rows returned by Stats.
const recentActivityLimit = 20

// Recorder is the GORM-backed audit service. An optional Kafka producer
// mirrors every violation onto the throttle-event stream.
type Recorder struct {
	db       *gorm.DB
	producer *EventProducer
	log      logger.Logger
	wg       sync.WaitGroup
}

// NewRecorder opens the audit database, migrates the violations table and,
// when configured, attaches the Kafka producer.
func NewRecorder(cfg config.AuditConfig, log logger.Logger) (*Recorder, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	default:
		dialector = sqlite.Open(cfg.Database.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.ErrInternal("failed to open audit database").WithCause(err)
	}
	if err := db.AutoMigrate(&models.Violation{}); err != nil {
		return nil, errors.ErrInternal("failed to migrate audit schema").WithCause(err)
	}

	recorder := &Recorder{db: db, log: log.WithComponent("audit")}
	if cfg.Kafka.Enabled {
		recorder.producer = NewEventProducer(cfg.Kafka, log)
	}
	return recorder, nil
}

// Record implements service.AuditService. The insert and the event publish
// run on a background context: the request context is gone by the time they
// land, and the caller never waits.
func (r *Recorder) Record(_ context.Context, v models.Violation) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.BlockedAt.IsZero() {
		v.BlockedAt = time.Now()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := r.db.WithContext(ctx).Create(&v).Error; err != nil {
			r.log.Error(ctx, "failed to persist violation", err,
				logger.String("operation", v.Operation),
				logger.String("ip", v.IP),
			)
		}
		if r.producer != nil {
			if err := r.producer.Publish(ctx, v); err != nil {
				r.log.Error(ctx, "failed to publish throttle event", err,
					logger.String("operation", v.Operation),
				)
			}
		}
	}()
}

// Stats implements service.AuditService.
func (r *Recorder) Stats(ctx context.Context, since time.Time, topN int) (*models.ViolationStats, error) {
	stats := &models.ViolationStats{}

	if err := r.db.WithContext(ctx).Model(&models.Violation{}).
		Where("blocked_at >= ?", since).
		Count(&stats.BlockedRequests).Error; err != nil {
		return nil, errors.ErrInternal("failed to count violations").WithCause(err)
	}

	if err := r.db.WithContext(ctx).Model(&models.Violation{}).
		Where("blocked_at >= ?", since).
		Distinct("ip").
		Count(&stats.UniqueIPs).Error; err != nil {
		return nil, errors.ErrInternal("failed to count unique ips").WithCause(err)
	}

	if err := r.db.WithContext(ctx).Model(&models.Violation{}).
		Select("ip, operation, count(*) as count").
		Where("blocked_at >= ?", since).
		Group("ip, operation").
		Order("count DESC").
		Limit(topN).
		Scan(&stats.TopBlocked).Error; err != nil {
		return nil, errors.ErrInternal("failed to aggregate top blocked").WithCause(err)
	}

	if err := r.db.WithContext(ctx).
		Where("blocked_at >= ?", since).
		Order("blocked_at DESC").
		Limit(recentActivityLimit).
		Find(&stats.RecentActivity).Error; err != nil {
		return nil, errors.ErrInternal("failed to load recent activity").WithCause(err)
	}

	return stats, nil
}

// Close waits for in-flight records, then releases the producer and the
// database handle.
func (r *Recorder) Close() error {
	r.wg.Wait()
	if r.producer != nil {
		if err := r.producer.Close(); err != nil {
			r.log.Error(context.Background(), "failed to close event producer", err)
		}
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
