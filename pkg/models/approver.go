package models

import (
	"errors"
	"fmt"
)

// ApproverKind discriminates the approver variants a step definition may name.
type ApproverKind string

const (
	ApproverKindRole    ApproverKind = "role"    // Any holder of a named role
	ApproverKindPerson  ApproverKind = "person"  // One specific person
	ApproverKindManager ApproverKind = "manager" // The requestor's direct manager
)

// ErrInvalidApproverSpec indicates an approver specification that names no
// valid variant or is missing the variant's payload.
var ErrInvalidApproverSpec = errors.New("invalid approver specification")

// ApproverSpec is a tagged variant: exactly one payload field is meaningful
// per kind. Role carries the role name for the role kind, PersonID the person
// for the person kind, and the manager kind needs no payload.
type ApproverSpec struct {
	Kind     ApproverKind `json:"kind"`
	Role     string       `json:"role,omitempty"`
	PersonID string       `json:"person_id,omitempty"`
}

// Validate checks the spec's kind and its payload.
func (s ApproverSpec) Validate() error {
	switch s.Kind {
	case ApproverKindRole:
		if s.Role == "" {
			return fmt.Errorf("%w: role approver requires a role name", ErrInvalidApproverSpec)
		}
	case ApproverKindPerson:
		if s.PersonID == "" {
			return fmt.Errorf("%w: person approver requires a person ID", ErrInvalidApproverSpec)
		}
	case ApproverKindManager:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidApproverSpec, s.Kind)
	}

	return nil
}
