package flow

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrInvalidConstraint = errors.New("invalid constraint")
	ErrMalformedEdge     = errors.New("malformed edge")
	ErrNodeNotFound      = errors.New("node not found")
	ErrEdgeNotFound      = errors.New("edge not found")
	ErrGraphFrozen       = errors.New("graph is frozen")
	ErrScanAborted       = errors.New("scan aborted")
)

// FlowError provides structured error information for flow operations.
type FlowError struct {
	Op      string // Operation that failed (e.g., "AddEdge", "FindTwoCycles")
	Entity  string // Entity type (e.g., "edge", "node", "constraint")
	ID      uint64 // Edge ID (if applicable)
	Key     string // Node key (if applicable)
	Field   string // Attribute name (for malformed edges, bad constraints)
	Cause   error  // Underlying error
	Context string // Additional context
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.ID != 0 || e.Entity == "edge" {
		if e.Field != "" {
			return fmt.Sprintf("%s %s %d (field %s): %v", e.Op, e.Entity, e.ID, e.Field, e.Cause)
		}
		return fmt.Sprintf("%s %s %d: %v", e.Op, e.Entity, e.ID, e.Cause)
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %s %q: %v", e.Op, e.Entity, e.Key, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s %s (field %s): %v", e.Op, e.Entity, e.Field, e.Cause)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Entity, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FlowError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error or its cause.
func (e *FlowError) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

// ErrorBuilder provides a fluent interface for building FlowErrors.
type ErrorBuilder struct {
	err FlowError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: FlowError{Op: op}}
}

// Edge sets the entity to "edge" with the given ID.
func (b *ErrorBuilder) Edge(id uint64) *ErrorBuilder {
	b.err.Entity = "edge"
	b.err.ID = id
	return b
}

// Node sets the entity to "node" with the given key.
func (b *ErrorBuilder) Node(key string) *ErrorBuilder {
	b.err.Entity = "node"
	b.err.Key = key
	return b
}

// Constraint sets the entity to "constraint" with the given option name.
func (b *ErrorBuilder) Constraint(option string) *ErrorBuilder {
	b.err.Entity = "constraint"
	b.err.Field = option
	return b
}

// Field sets the attribute name.
func (b *ErrorBuilder) Field(name string) *ErrorBuilder {
	b.err.Field = name
	return b
}

// Context sets additional context information.
func (b *ErrorBuilder) Context(ctx string) *ErrorBuilder {
	b.err.Context = ctx
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Build returns the constructed FlowError.
func (b *ErrorBuilder) Build() *FlowError {
	return &b.err
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

// Convenience constructors for common error patterns

// MalformedEdgeError reports a structurally invalid edge attribute.
func MalformedEdgeError(edgeID uint64, field string, cause error) error {
	return NewError("validate").Edge(edgeID).Field(field).
		Cause(fmt.Errorf("%w: %v", ErrMalformedEdge, cause)).Err()
}

// InvalidConstraintError reports a malformed matching option.
func InvalidConstraintError(option string, cause error) error {
	return NewError("validate").Constraint(option).
		Cause(fmt.Errorf("%w: %v", ErrInvalidConstraint, cause)).Err()
}

// NodeNotFoundError reports a lookup miss by node key.
func NodeNotFoundError(key string) error {
	return NewError("get").Node(key).Cause(ErrNodeNotFound).Err()
}

// IsMalformedEdge returns true if the error marks a malformed edge.
func IsMalformedEdge(err error) bool {
	return errors.Is(err, ErrMalformedEdge)
}

// IsInvalidConstraint returns true if the error marks a bad constraint.
func IsInvalidConstraint(err error) bool {
	return errors.Is(err, ErrInvalidConstraint)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrEdgeNotFound)
}
