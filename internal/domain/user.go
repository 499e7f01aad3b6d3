package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User is the marketplace identity. Rating aggregates are maintained by rating settlement only.
type User struct {
	ID                     uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Email                  string          `gorm:"column:email;not null;uniqueIndex" json:"email"`
	FullName               string          `gorm:"column:full_name;not null" json:"full_name"`
	PasswordHash           string          `gorm:"column:password_hash;not null" json:"-"`
	Role                   string          `gorm:"column:role;not null;default:student" json:"role"`
	Verified               bool            `gorm:"column:verified;not null;default:false" json:"verified"`
	VerificationToken      *string         `gorm:"column:verification_token" json:"-"`
	VerificationExpiresAt  *time.Time      `gorm:"column:verification_expires_at" json:"-"`
	LastVerificationSentAt *time.Time      `gorm:"column:last_verification_sent_at" json:"-"`
	CreditsBalance         decimal.Decimal `gorm:"column:credits_balance;type:decimal(12,2);not null;default:0" json:"credits_balance"`
	RatingSum              int             `gorm:"column:rating_sum;not null;default:0" json:"rating_sum"`
	RatingCount            int             `gorm:"column:rating_count;not null;default:0" json:"rating_count"`
	AverageRating          float64         `gorm:"column:average_rating;not null;default:0" json:"average_rating"`
	CreatedAt              time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt              time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (User) TableName() string {
	return "Users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// DisplayName falls back to the email when no name was given at registration.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
