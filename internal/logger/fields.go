package logger

import (
	"strings"

	"github.com/spigell/hh-assistant/internal/models"
	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"

	FieldUser        = "user_id"
	FieldProfile     = "profile_id"
	FieldPosting     = "posting_id"
	FieldPlatform    = "platform"
	FieldExternalID  = "external_id"
	FieldApplication = "application_id"
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

// WithFields attaches fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns the AI provider and model fields. Empty values are dropped.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// PostingFields identifies a posting in log entries.
func PostingFields(p *models.Posting) []zap.Field {
	if p == nil {
		return nil
	}
	return StringFields(
		StringField{Key: FieldPosting, Value: p.ID},
		StringField{Key: FieldPlatform, Value: p.Platform},
		StringField{Key: FieldExternalID, Value: p.ExternalID},
	)
}
