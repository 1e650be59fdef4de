package recorder

import (
	"time"

	"github.com/yanun0323/eventsocket/pkg/websocket"
)

// Record is one subscription event as stored.
type Record struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	SubscriptionID string    `gorm:"size:64;index"`
	Channel        string    `gorm:"size:512;index:idx_events_channel_received"`
	Data           string    `gorm:"type:jsonb"`
	ReceivedAt     time.Time `gorm:"index:idx_events_channel_received"`
	RecordedAt     time.Time `gorm:"autoCreateTime"`
}

// TableName implements gorm's tabler.
func (Record) TableName() string {
	return "events"
}

// NewRecord converts a delivered event.
func NewRecord(ev websocket.Event) Record {
	return Record{
		SubscriptionID: ev.ID,
		Channel:        ev.Channel,
		Data:           string(ev.Data),
		ReceivedAt:     ev.ReceivedAt,
	}
}
