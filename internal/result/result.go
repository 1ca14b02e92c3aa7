// Package result defines the failure model shared by every credential
// operation. Failures are values: a Failure carries a category and the
// field-scoped reasons that produced it, and orchestrators propagate the
// first failure they meet verbatim.
package result

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a Failure for transport mapping.
type Kind int

const (
	// KindOperation is a generic message-carrying failure (store rejected a
	// mutation, mail dispatch failed, malformed token).
	KindOperation Kind = iota
	// KindValidation carries one or more field-scoped rule violations.
	KindValidation
	// KindNotFound means the referenced principal is absent.
	KindNotFound
	// KindForbidden covers authorization, lockout, and refresh-token
	// rejection.
	KindForbidden
)

// FieldError holds every collected reason for a single field. The empty
// field name is reserved for non-field failures.
type FieldError struct {
	Field   string
	Reasons []string
}

// Failure is the error value produced by the core. One Failure aggregates
// all reasons of one failed operation; it is never partially reported.
type Failure struct {
	Kind   Kind
	Fields []FieldError
}

// Sentinels for errors.Is checks. Matching is by Kind, so any NotFound
// failure matches ErrNotFound regardless of its reasons.
var (
	ErrNotFound  = &Failure{Kind: KindNotFound, Fields: []FieldError{{Reasons: []string{"Not found"}}}}
	ErrForbidden = &Failure{Kind: KindForbidden, Fields: []FieldError{{Reasons: []string{"Forbidden"}}}}
)

func (f *Failure) Error() string {
	var parts []string
	for _, fe := range f.Fields {
		if fe.Field == "" {
			parts = append(parts, strings.Join(fe.Reasons, "; "))
			continue
		}
		parts = append(parts, fe.Field+": "+strings.Join(fe.Reasons, "; "))
	}
	if len(parts) == 0 {
		return "operation failed"
	}
	return strings.Join(parts, "; ")
}

// Is reports kind equality so sentinel comparisons work through wrapping.
func (f *Failure) Is(target error) bool {
	var other *Failure
	if !errors.As(target, &other) {
		return false
	}
	return f.Kind == other.Kind
}

// NotFound returns a fresh not-found failure.
func NotFound() *Failure {
	return &Failure{Kind: KindNotFound, Fields: []FieldError{{Reasons: []string{"Not found"}}}}
}

// Forbidden returns a forbidden failure carrying the given reasons, or the
// bare "Forbidden" reason when none are supplied.
func Forbidden(reasons ...string) *Failure {
	if len(reasons) == 0 {
		reasons = []string{"Forbidden"}
	}
	return &Failure{Kind: KindForbidden, Fields: []FieldError{{Reasons: reasons}}}
}

// Failf returns a generic operation failure with a formatted reason.
func Failf(format string, args ...any) *Failure {
	return &Failure{
		Kind:   KindOperation,
		Fields: []FieldError{{Reasons: []string{fmt.Sprintf(format, args...)}}},
	}
}

// Validation builds a validation failure from per-field errors. Fields keep
// their given order.
func Validation(fields ...FieldError) *Failure {
	return &Failure{Kind: KindValidation, Fields: fields}
}

// Merge concatenates the fields of two failures, joining reasons keyed by
// field name. The merged failure keeps the kind of the first argument.
func Merge(a, b *Failure) *Failure {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	merged := &Failure{Kind: a.Kind}
	index := make(map[string]int)
	for _, fe := range append(append([]FieldError{}, a.Fields...), b.Fields...) {
		if i, ok := index[fe.Field]; ok {
			merged.Fields[i].Reasons = append(merged.Fields[i].Reasons, fe.Reasons...)
			continue
		}
		index[fe.Field] = len(merged.Fields)
		merged.Fields = append(merged.Fields, FieldError{
			Field:   fe.Field,
			Reasons: append([]string{}, fe.Reasons...),
		})
	}
	return merged
}

// FieldsOf extracts the field errors of a Failure, or wraps an arbitrary
// error as a single non-field reason.
func FieldsOf(err error) []FieldError {
	var f *Failure
	if errors.As(err, &f) {
		return f.Fields
	}
	return []FieldError{{Reasons: []string{err.Error()}}}
}

// KindOf reports the failure kind; arbitrary errors map to KindOperation.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindOperation
}
