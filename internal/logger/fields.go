package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldPipeline is the structured log field key for a controller instance id.
	FieldPipeline = "pipeline_id"
	// FieldKind is the structured log field key for the match kind.
	FieldKind = "match_kind"
	// FieldJD is the structured log field key for the job description id.
	FieldJD = "jd_id"
	// FieldResume is the structured log field key for the resume or profile id.
	FieldResume = "resume_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the provided fields to the logger, defaulting to a no-op
// logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// PipelineFields returns the fields identifying one pipeline run.
// Empty values are dropped so JD-only or resume-only runs stay compact.
func PipelineFields(id, kind, jdID, resumeID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldPipeline, Value: id},
		StringField{Key: FieldKind, Value: kind},
		StringField{Key: FieldJD, Value: jdID},
		StringField{Key: FieldResume, Value: resumeID},
	)
}

// WithPipelineFields attaches the pipeline fields to the provided logger.
func WithPipelineFields(logger *zap.Logger, id, kind, jdID, resumeID string) *zap.Logger {
	return WithFields(logger, PipelineFields(id, kind, jdID, resumeID)...)
}
