//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package common provides shared types and utilities used across the
// decision engine packages.
//
// # Error Handling
//
// The [Error] type provides structured error information with a
// machine-readable code drawn from the fixed taxonomy, suitable for
// returning to callers and recording in the audit trail. Messages are
// sanitized; internal stack information is never exposed.
package common

import (
	"errors"
	"fmt"
)

// Code classifies an error for machine consumption.
type Code string

// The fixed error taxonomy. Every error surfaced by the engine carries
// exactly one of these codes.
const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeConfig          Code = "CONFIG_ERROR"
	CodeAgent           Code = "AGENT_ERROR"
	CodePolicyViolation Code = "POLICY_VIOLATION"
	CodeAudit           Code = "AUDIT_ERROR"
	CodeModel           Code = "MODEL_ERROR"
	CodeEscalation      Code = "ESCALATION_ERROR"
)

// Error represents a structured engine error.
//
// Error is returned instead of the bare error interface wherever the
// classification matters to the caller: transport maps Code to a response
// body, the decision flow maps agent failures to escalations, and the
// ledger records audit failures by code.
type Error struct {
	// Code is the machine-readable classification.
	Code Code
	// Message is a sanitized, human-readable description.
	Message string
	// Details carries optional structured context, safe for external eyes.
	Details map[string]interface{}
	// cause is the wrapped underlying error, for logs only.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s(code-%s)", e.Message, e.Code)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new [Error] with the specified code and message.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// NewErrorf creates a new [Error] with a formatted message.
func NewErrorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a new [Error] that records err as its cause. The cause
// is available to logs via Unwrap but is not part of the sanitized message.
func WrapError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// WithDetails returns e with the given details attached.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the taxonomy code from err, walking the wrap chain.
// Unclassified errors report CodeAgent when they originate inside an
// evaluator and are otherwise unknown to the taxonomy.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
