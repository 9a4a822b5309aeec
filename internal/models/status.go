package models

import "fmt"

// ApplicationStatus is the lifecycle state of an application.
//
//	pending ──► sent ──► responded
//	   │          │
//	   └──────────┴──► rejected
//
// responded and rejected are terminal.
type ApplicationStatus string

const (
	StatusPending   ApplicationStatus = "pending"
	StatusSent      ApplicationStatus = "sent"
	StatusResponded ApplicationStatus = "responded"
	StatusRejected  ApplicationStatus = "rejected"
)

var validTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusPending: {StatusSent, StatusRejected},
	StatusSent:    {StatusResponded, StatusRejected},
}

func ParseStatus(s string) (ApplicationStatus, error) {
	st := ApplicationStatus(s)
	switch st {
	case StatusPending, StatusSent, StatusResponded, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTransitionAllowed reports whether from -> to is a valid move.
func IsTransitionAllowed(from, to ApplicationStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
