package domain

import (
	"errors"
	"fmt"
)

// ErrNoTransactions marks a parse that recognized nothing. Ingesters report it as
// an empty successful outcome; it is never returned to HTTP callers as a failure.
var ErrNoTransactions = errors.New("no transactions found")

// ExtractionError means the source artifact was unreadable, unsupported or empty.
type ExtractionError struct {
	Source string
	Msg    string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract %s: %s", e.Source, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractionError builds an ExtractionError for source.
func NewExtractionError(source, msg string, err error) error {
	return &ExtractionError{Source: source, Msg: msg, Err: err}
}

// IsExtractionError reports whether err is or wraps an ExtractionError.
func IsExtractionError(err error) bool {
	var target *ExtractionError
	return errors.As(err, &target)
}

// AIParseError means the delegate returned malformed or schema-violating content.
type AIParseError struct {
	Msg string
	Raw string
	Err error
}

func (e *AIParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ai parse: %s: %v", e.Msg, e.Err)
	}
	return "ai parse: " + e.Msg
}

func (e *AIParseError) Unwrap() error { return e.Err }

// IsAIParseError reports whether err is or wraps an AIParseError.
func IsAIParseError(err error) bool {
	var target *AIParseError
	return errors.As(err, &target)
}

// ConfigurationError is returned by constructors whose required settings are absent.
type ConfigurationError struct {
	Component string
	Msg       string
	Err       error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: configuration: %s", e.Component, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IncompleteReceiptError means a receipt lacked a required field after
// extraction and caller overrides. Missing fields are never defaulted.
type IncompleteReceiptError struct {
	Missing []string
}

func (e *IncompleteReceiptError) Error() string {
	return fmt.Sprintf("receipt incomplete: missing %v", e.Missing)
}

// IsIncompleteReceiptError reports whether err is or wraps an IncompleteReceiptError.
func IsIncompleteReceiptError(err error) bool {
	var target *IncompleteReceiptError
	return errors.As(err, &target)
}
