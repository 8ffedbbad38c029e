package repository

import "errors"

// Sentinel errors surfaced by the guarded enrollment transactions. The
// service layer maps them onto the API error taxonomy.
var (
	ErrAssignmentNotFound       = errors.New("assignment not found")
	ErrAssignmentInactive       = errors.New("assignment inactive")
	ErrAssignmentFull           = errors.New("assignment full")
	ErrDuplicateEnrollment      = errors.New("duplicate active enrollment")
	ErrCapacityBelowEnrolled    = errors.New("capacity below enrolled count")
	ErrEnrollmentNotFound       = errors.New("enrollment not found")
	ErrEnrollmentNotActive      = errors.New("enrollment not active")
	ErrGradeFinalized           = errors.New("grade finalized")
	ErrGradeNotFound            = errors.New("grade not found")
	ErrAssignmentHasEnrollments = errors.New("assignment has active enrollments")
)
