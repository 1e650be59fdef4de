package recorder

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

// Store persists recorded events.
type Store interface {
	Save(ctx context.Context, records []Record) error
}

// DefaultListLimit caps List when Query.Limit is not set.
const DefaultListLimit = 100

// Query selects stored events.
type Query struct {
	Channel string
	Since   time.Time
	// Limit caps the result. Optional; default DefaultListLimit.
	Limit int
}

// GormStore keeps events in a SQL table through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore returns a store on db. Call Migrate before first use.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the events table.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return errors.Wrap(err, "migrate events table")
	}
	return nil
}

// Save implements Store.
func (s *GormStore) Save(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(records, len(records)).Error; err != nil {
		return errors.Wrap(err, "insert events").With("count", len(records))
	}
	return nil
}

// List returns stored events oldest first.
func (s *GormStore) List(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	tx := s.db.WithContext(ctx).Model(&Record{})
	if q.Channel != "" {
		tx = tx.Where("channel = ?", q.Channel)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("received_at >= ?", q.Since)
	}

	var records []Record
	if err := tx.Order("received_at ASC, id ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "list events").With("channel", q.Channel)
	}
	return records, nil
}
