package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const MaxHeaderValueLength = 128

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateDelivery checks transport metadata only. Payload content is judged by the
// decoder, so an empty payload is valid here and ends up quarantined.
func ValidateDelivery(d *Delivery) error {
	if d == nil {
		return &ValidationError{
			Field:   "delivery",
			Message: "delivery cannot be nil",
		}
	}

	if d.Source == "" {
		return &ValidationError{
			Field:   "source",
			Message: "delivery source is required",
		}
	}

	for field, value := range map[string]string{
		"message_id":      d.MessageID,
		"idempotency_key": d.IdempotencyKey,
		"bsnr_hint":       d.BSNRHint,
		"lanr_hint":       d.LANRHint,
	} {
		if len(value) > MaxHeaderValueLength {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("must be at most %d characters", MaxHeaderValueLength),
			}
		}
		if !utf8.ValidString(value) || strings.ContainsRune(value, 0) {
			return &ValidationError{
				Field:   field,
				Message: "must be valid UTF-8 text",
			}
		}
	}

	return nil
}
