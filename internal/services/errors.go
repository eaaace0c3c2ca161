// Package services defines the business logic for webhook ingestion, deferred
// transaction processing, and transaction queries. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrTransactionExists is returned when an insert races another delivery
	// of the same transaction identifier and loses to the uniqueness
	// constraint. Semantically this is the same "already exists" condition as
	// an ordinary duplicate delivery, but it is surfaced as a distinct error
	// so the raced path stays diagnosable.
	ErrTransactionExists = errors.New("transaction already exists")

	// ErrTransactionNotFound indicates that the requested transaction does
	// not exist (or has been soft-deleted).
	ErrTransactionNotFound = errors.New("transaction not found")
)
