package model

// All lists every model migrated at startup.
func All() []any {
	return []any{
		&CountingEntry{},
		&PrimaryEntry{},
		&SecondaryEntry{},
	}
}
