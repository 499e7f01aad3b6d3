package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rating is unique per (order_id, rater_id).
type Rating struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_rating_order_rater" json:"order_id"`
	RaterID   uuid.UUID `gorm:"column:rater_id;type:uuid;not null;uniqueIndex:idx_rating_order_rater" json:"rater_id"`
	RateeID   uuid.UUID `gorm:"column:ratee_id;type:uuid;not null;index" json:"ratee_id"`
	Stars     int       `gorm:"column:stars;not null" json:"stars"`
	Comment   string    `gorm:"column:comment" json:"comment"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (Rating) TableName() string {
	return "Ratings"
}

func (r *Rating) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
