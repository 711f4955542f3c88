package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState records the outcome of the most recent sync per dataset scope.
type SyncState struct {
	Scope         string         `gorm:"primaryKey;type:varchar(191)" json:"scope"`
	Source        string         `gorm:"type:varchar(64)" json:"source"`
	RunID         string         `gorm:"type:varchar(64)" json:"run_id"`
	TxHash        *string        `gorm:"type:varchar(80)" json:"tx_hash,omitempty"`
	Appealed      bool           `gorm:"not null;default:false" json:"appealed"`
	LastSuccessAt *time.Time     `json:"last_success_at,omitempty"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	LastError     *string        `gorm:"type:text" json:"last_error,omitempty"`
	StatsJSON     datatypes.JSON `json:"stats,omitempty"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
