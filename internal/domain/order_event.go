package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventOrderCreated         = "CREATED"
	EventOrderPaid            = "PAID"
	EventHandoffCodeGenerated = "HANDOFF_CODE_GENERATED"
	EventHandoffAttemptFailed = "HANDOFF_ATTEMPT_FAILED"
	EventOrderCompleted       = "COMPLETED"
	EventOrderDisputed        = "DISPUTED"
	EventOrderAutoReleased    = "AUTO_RELEASED"
	EventOrderRated           = "RATED"
)

// OrderEvent is the audit trail of order transitions, written in the same transaction as the transition.
type OrderEvent struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID   uuid.UUID      `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	EventType string         `gorm:"column:event_type;type:varchar(40);not null" json:"event_type"`
	ActorID   *uuid.UUID     `gorm:"column:actor_id;type:uuid" json:"actor_id"`
	EventData datatypes.JSON `gorm:"column:event_data;type:json" json:"event_data"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"createdAt"`
}

func (OrderEvent) TableName() string {
	return "OrderEvents"
}

func (e *OrderEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// NewOrderEvent builds an audit row; actor is nil for system transitions.
func NewOrderEvent(orderID uuid.UUID, eventType string, actor *uuid.UUID, data map[string]interface{}) *OrderEvent {
	b, _ := json.Marshal(data)
	if data == nil {
		b = []byte("{}")
	}
	return &OrderEvent{
		OrderID:   orderID,
		EventType: eventType,
		ActorID:   actor,
		EventData: datatypes.JSON(b),
	}
}
