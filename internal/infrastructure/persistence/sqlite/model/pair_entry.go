package model

// PrimaryEntry and SecondaryEntry are written as a pair by one unit of work;
// a primary row without its secondary means the pair was not atomic.
type PrimaryEntry struct {
	ID  int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	Val string `gorm:"column:val;type:text;not null"`
}

func (PrimaryEntry) TableName() string {
	return "primary_entries"
}

type SecondaryEntry struct {
	ID  int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	Val string `gorm:"column:val;type:text;not null"`
}

func (SecondaryEntry) TableName() string {
	return "secondary_entries"
}
