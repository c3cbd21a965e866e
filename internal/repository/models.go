package repository

import (
	"time"

	"github.com/kursadbilgin/dncl-gateway/internal/domain"
)

// RemovalModel is the persistence model for plc_dncl_removed.
type RemovalModel struct {
	ID           uint64                 `gorm:"primaryKey;autoIncrement"`
	PhoneNumber  string                 `gorm:"type:varchar(20);not null"`
	ListName     string                 `gorm:"column:dncl_list_name;type:varchar(255);not null"`
	LoginCloud   *string                `gorm:"type:varchar(100)"`
	LoginOnPrem  *string                `gorm:"column:login_onprem;type:varchar(100)"`
	CloudStatus  *string                `gorm:"type:varchar(10)"`
	OnPremStatus *string                `gorm:"column:onprem_status;type:varchar(10)"`
	Status       domain.AggregateStatus `gorm:"type:varchar(20);not null"`
	CreatedAt    time.Time              `gorm:"not null;default:now()"`
}

func (RemovalModel) TableName() string {
	return "plc_dncl_removed"
}

func removalModelFromDomain(r domain.AuditRecord) *RemovalModel {
	return &RemovalModel{
		PhoneNumber:  r.PhoneNumber,
		ListName:     r.ListName,
		LoginCloud:   r.LoginCloud,
		LoginOnPrem:  r.LoginOnPrem,
		CloudStatus:  r.CloudStatus,
		OnPremStatus: r.OnPremStatus,
		Status:       r.Status,
	}
}
