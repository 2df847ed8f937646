// Package errors defines the structured error taxonomy used across the
// pipeline. Every failure produced by a stage carries a machine-readable
// code, so the orchestrator can decide between aborting the run and
// recording a warning without string matching.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline failure.
type Code string

const (
	// CodeSourceNotFound marks a missing or unreadable input artifact. Fatal.
	CodeSourceNotFound Code = "SOURCE_NOT_FOUND"
	// CodeSchemaMismatch marks input that lacks required columns. Fatal.
	CodeSchemaMismatch Code = "SCHEMA_MISMATCH"
	// CodeParseFailure marks individual values that could not be parsed.
	// Non-fatal: affected cells degrade to missing.
	CodeParseFailure Code = "PARSE_FAILURE"
	// CodePolicyViolation marks data outside configured policy bounds.
	// Non-fatal: the engine corrects and records the violation.
	CodePolicyViolation Code = "POLICY_VIOLATION"
	// CodeIntegrityWarning marks suspicious but tolerable conditions such as
	// hash collisions or class imbalance. Non-fatal.
	CodeIntegrityWarning Code = "INTEGRITY_WARNING"
)

// PipelineError is a structured error with a taxonomy code and an optional
// wrapped cause.
type PipelineError struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// New creates a pipeline error with the given code and message.
func New(code Code, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a pipeline error around an underlying cause.
func Wrap(code Code, err error, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// SourceNotFound reports a missing input artifact.
func SourceNotFound(path string, err error) *PipelineError {
	return Wrap(CodeSourceNotFound, err, "source artifact %q not found", path)
}

// SchemaMismatch reports required columns missing from the working table.
func SchemaMismatch(format string, args ...interface{}) *PipelineError {
	return New(CodeSchemaMismatch, format, args...)
}

// ParseFailure reports a value that could not be interpreted.
func ParseFailure(format string, args ...interface{}) *PipelineError {
	return New(CodeParseFailure, format, args...)
}

// PolicyViolation reports data outside configured bounds.
func PolicyViolation(format string, args ...interface{}) *PipelineError {
	return New(CodePolicyViolation, format, args...)
}

// IntegrityWarning reports a suspicious but tolerable condition.
func IntegrityWarning(format string, args ...interface{}) *PipelineError {
	return New(CodeIntegrityWarning, format, args...)
}

// CodeOf extracts the taxonomy code from an error chain. Returns an empty
// code when the chain holds no pipeline error.
func CodeOf(err error) Code {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsFatal reports whether the error must abort the run. Missing sources and
// schema mismatches are fatal; everything else is recorded and survived.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeSourceNotFound, CodeSchemaMismatch:
		return true
	default:
		return false
	}
}
