package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/callwarden/callwarden/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidRule    = errors.New("invalid rule")
	ErrInvalidSession = errors.New("invalid session")
	ErrInvalidSegment = errors.New("invalid segment")
	ErrInvalidAlert   = errors.New("invalid alert")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRule validates a rule before it touches the database.
func validateRule(rule *model.ComplianceRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// validateSession validates a session before it touches the database.
func validateSession(session *model.Session) error {
	if session == nil {
		return fmt.Errorf("%w: session", ErrNilParameter)
	}
	if err := session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return nil
}

// validateSegment validates a segment before it touches the database.
func validateSegment(segment *model.TranscriptSegment) error {
	if segment == nil {
		return fmt.Errorf("%w: segment", ErrNilParameter)
	}
	if err := segment.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSegment, err)
	}
	return nil
}

// validateAlert validates an alert before it touches the database.
func validateAlert(alert *model.ComplianceAlert) error {
	if alert == nil {
		return fmt.Errorf("%w: alert", ErrNilParameter)
	}
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	return nil
}
