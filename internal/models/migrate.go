package models

// AllModels returns every model in migration-safe order: referenced tables
// before the tables holding their foreign keys.
func AllModels() []any {
	return []any{
		&GlobalSettings{},
		&ProxySettings{},
		&Streamer{},
		&StreamerRecordingSettings{},
		&Stream{},
		&Chapter{},
		&Recording{},
		&ActiveRecordingState{},
		&RecordingProcessingState{},
		&StreamMetadata{},
		&Session{},
		&ShareToken{},
	}
}
