package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Sriram-PR/crawl-loader/pkg/log"
	"github.com/Sriram-PR/crawl-loader/pkg/models"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// failureRow is the persisted form of a journal record
type failureRow struct {
	ID          string    `gorm:"primaryKey;size:36"`
	URL         string    `gorm:"index;not null"`
	InitiatorID string    `gorm:"size:128"`
	Timestamp   time.Time `gorm:"index;not null"`
	Attempt     int
	Reason      string `gorm:"type:text"`
	Category    string `gorm:"size:64;index"`
	HTTPStatus  int
}

func (failureRow) TableName() string {
	return "failure_records"
}

func (r *failureRow) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

func (r *failureRow) toModel() models.FailureRecord {
	return models.FailureRecord{
		URL:         r.URL,
		InitiatorID: r.InitiatorID,
		Timestamp:   r.Timestamp,
		Attempt:     r.Attempt,
		Reason:      r.Reason,
		Category:    r.Category,
		HTTPStatus:  r.HTTPStatus,
	}
}

// JournalStore implements FailureJournal and JournalReader on SQLite via GORM
type JournalStore struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewJournalStore opens the journal database at path, creating the schema if needed
func NewJournalStore(path string, logger *logrus.Entry) (*JournalStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create journal directory: %v", utils.ErrFilesystem, err)
	}
	// WAL lets the CLI read the journal while a loader appends to it
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: log.NewGormLogrusAdapter(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open journal database: %v", utils.ErrDatabase, err)
	}
	if err := db.AutoMigrate(&failureRow{}); err != nil {
		return nil, fmt.Errorf("%w: failed to migrate journal schema: %v", utils.ErrDatabase, err)
	}

	logger.Infof("Failure journal ready at: %s", path)
	return &JournalStore{db: db, log: logger}, nil
}

// Append implements FailureJournal
func (j *JournalStore) Append(record *models.FailureRecord) error {
	if record == nil {
		return nil
	}
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	row := &failureRow{
		URL:         record.URL,
		InitiatorID: record.InitiatorID,
		Timestamp:   ts.UTC(),
		Attempt:     record.Attempt,
		Reason:      record.Reason,
		Category:    record.Category,
		HTTPStatus:  record.HTTPStatus,
	}
	if err := j.db.Create(row).Error; err != nil {
		return fmt.Errorf("%w: appending failure for '%s': %v", utils.ErrDatabase, record.URL, err)
	}
	return nil
}

// Recent returns up to limit records, newest first
func (j *JournalStore) Recent(limit int) ([]models.FailureRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []failureRow
	if err := j.db.Order("timestamp DESC").Order("attempt DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: listing failures: %v", utils.ErrDatabase, err)
	}
	return toModels(rows), nil
}

// ForURL returns every record for a URL in attempt order
func (j *JournalStore) ForURL(url string) ([]models.FailureRecord, error) {
	var rows []failureRow
	if err := j.db.Where("url = ?", url).Order("timestamp ASC").Order("attempt ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: listing failures for '%s': %v", utils.ErrDatabase, url, err)
	}
	return toModels(rows), nil
}

// Count returns the number of journaled failures
func (j *JournalStore) Count() (int64, error) {
	var n int64
	if err := j.db.Model(&failureRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: counting failures: %v", utils.ErrDatabase, err)
	}
	return n, nil
}

// Close releases the underlying connection pool
func (j *JournalStore) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModels(rows []failureRow) []models.FailureRecord {
	out := make([]models.FailureRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}
