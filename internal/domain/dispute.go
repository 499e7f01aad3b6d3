package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DisputeStatus string

const (
	DisputeOpen DisputeStatus = "Open"
)

type Dispute struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID      `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	RaisedByID uuid.UUID      `gorm:"column:raised_by_id;type:uuid;not null" json:"raised_by_id"`
	Reason     string         `gorm:"column:reason;not null" json:"reason"`
	Evidence   datatypes.JSON `gorm:"column:evidence;type:json" json:"evidence"`
	Status     DisputeStatus  `gorm:"column:status;type:varchar(20);not null;default:'Open'" json:"status"`
	CreatedAt  time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt  time.Time      `gorm:"column:updated_at" json:"updatedAt"`
}

func (Dispute) TableName() string {
	return "Disputes"
}

func (d *Dispute) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
