package models

import "time"

// Sequence names used by the numbering services.
const (
	SequenceJournal = "journal"
	SequenceBank    = "bank"
)

// TenantSequence is a per-tenant atomic counter row. It is read and incremented under
// a row lock inside the same transaction that inserts the numbered record, so numbers
// are strictly monotonic per tenant. Gaps only appear when that transaction rolls back.
type TenantSequence struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"not null;uniqueIndex:idx_tenant_sequence"`
	Name      string    `json:"name" gorm:"size:30;not null;uniqueIndex:idx_tenant_sequence"`
	Value     uint64    `json:"value" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
