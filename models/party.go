package models

import (
	"time"

	"gorm.io/gorm"
)

// Party is a customer or supplier of the administration.
type Party struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	TenantID         uint           `json:"tenant_id" gorm:"not null;index"`
	PartyType        string         `json:"party_type" gorm:"size:20;not null;index"`
	Name             string         `json:"name" gorm:"size:255;not null"`
	TaxNumber        string         `json:"tax_number,omitempty" gorm:"size:30"`
	CountryCode      string         `json:"country_code,omitempty" gorm:"size:2"`
	IBAN             string         `json:"iban,omitempty" gorm:"size:34;index"`
	PaymentTermsDays int            `json:"payment_terms_days" gorm:"not null;default:30"`
	DefaultAccountID *uint          `json:"default_account_id,omitempty"`
	IsActive         bool           `json:"is_active" gorm:"default:true"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`
}
