package logging

import "log/slog"

// Common structured log field keys to keep logs searchable/consistent.
const (
	FieldService    = "service"
	FieldVersion    = "version"
	FieldRequestID  = "request_id"
	FieldPath       = "path"
	FieldMethod     = "method"
	FieldStatusCode = "status_code"
	FieldDurationMS = "duration_ms"
	FieldCount      = "count"

	FieldSessionID = "session_id"
	FieldMatchID   = "match_id"
	FieldLeagueID  = "league_id"
	FieldSeasonID  = "season_id"
	FieldMode      = "mode"
	FieldJobID     = "job_id"
	FieldJobKind   = "job_kind"
	FieldAttempt   = "attempt"
	FieldOutcome   = "outcome"
	FieldReason    = "reason"
	FieldTopic     = "topic"
)

// Job outcomes. Skipped is a successful no-op and must never be logged as a failure.
const (
	OutcomeDone    = "done"
	OutcomeSkipped = "skipped"
	OutcomeRetry   = "retry"
	OutcomeFailed  = "failed"
)

// WithCommon appends service/version fields when provided.
func WithCommon(attrs []slog.Attr, service, version string) []slog.Attr {
	if service != "" {
		attrs = append(attrs, slog.String(FieldService, service))
	}
	if version != "" {
		attrs = append(attrs, slog.String(FieldVersion, version))
	}
	return attrs
}
