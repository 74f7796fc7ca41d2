package model

import "time"

// CountingEntry is one counted row. Labels repeat across workers.
type CountingEntry struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Label     string    `gorm:"column:label;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
}

func (CountingEntry) TableName() string {
	return "counting_entries"
}
