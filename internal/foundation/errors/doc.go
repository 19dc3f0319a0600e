// Package errors provides the classified error primitives used across cicdsim.
//
// A ClassifiedError carries a category, a severity and a free-form context map.
// Errors are built through a fluent builder:
//
//	err := errors.NewError(errors.CategoryDeploy, "push rejected").
//		WithContext("image", ref).
//		WithCause(cause).
//		Build()
//
// Two classified errors compare equal under errors.Is when category and message
// match, so package-level sentinels can be declared once and matched against
// errors that carry extra context.
//
// The HTTP and CLI adapters turn classified errors into status codes, exit codes
// and log records.
package errors
