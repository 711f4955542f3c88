package models

import "time"

type CacheEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(191)"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index"`
}

func (CacheEntry) TableName() string {
	return "cache_entries"
}
