// Package coa submits certificate-of-attendance corrections through the
// portal's two-phase web methods: a side-effect-free duplicate-check
// validation POST, then the committing save POST with the identical payload.
package coa

import (
	"fmt"
	"time"
)

// Request is one attendance correction: a calendar date, at least one of an
// in/out time, and free-text reason and category labels.
type Request struct {
	Date     string // canonical YYYY-MM-DD
	TimeIn   string // HH:MM, "" to skip the In entry
	TimeOut  string // HH:MM, "" to skip the Out entry
	Reason   string
	Category string // label used with the fixed "Others" category code
}

// Validate checks the request's preconditions. Violations are rejected
// before any network interaction.
func (r *Request) Validate() error {
	if r.TimeIn == "" && r.TimeOut == "" {
		return fmt.Errorf("at least one of the in/out times is required")
	}
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return fmt.Errorf("date %q is not a calendar date in YYYY-MM-DD form", r.Date)
	}
	if r.TimeIn != "" {
		if _, err := time.Parse("15:04", r.TimeIn); err != nil {
			return fmt.Errorf("in time %q is not a time of day in HH:MM form", r.TimeIn)
		}
	}
	if r.TimeOut != "" {
		if _, err := time.Parse("15:04", r.TimeOut); err != nil {
			return fmt.Errorf("out time %q is not a time of day in HH:MM form", r.TimeOut)
		}
	}
	return nil
}

// Status tags a submission outcome.
type Status int

const (
	// Accepted: the portal committed the correction.
	Accepted Status = iota
	// Rejected: the portal refused it (validation, commit, or envelope).
	Rejected
	// TransportFailed: the submission never completed an HTTP exchange
	// (connectivity, authentication, or precondition failure).
	TransportFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case TransportFailed:
		return "transport-failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Outcome is the tagged result of one submission.
type Outcome struct {
	Status Status
	Reason string // human-readable detail for Rejected/TransportFailed
}

// Ok reports whether the submission was accepted.
func (o Outcome) Ok() bool {
	return o.Status == Accepted
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Status.String()
	}
	return fmt.Sprintf("%s: %s", o.Status, o.Reason)
}

// certificateTypeOthers is the portal's category code for "Others"; the
// free-text category label qualifies it.
const certificateTypeOthers = "0"

// payload is the wire envelope both web methods expect.
type payload struct {
	CertificateOfAttendance certificate `json:"certificateOfAttendance"`
}

type certificate struct {
	CertificateOfAttendanceID int        `json:"CertificateOfAttendanceID"`
	CertificateTypeID         string     `json:"CertificateTypeID"`
	CertificateTypeOthers     string     `json:"CertificateTypeOthers"`
	Remarks                   string     `json:"Remarks"`
	Status                    *string    `json:"Status"`
	EmployeeID                int        `json:"EmployeeID"`
	FormattedCertificateLogs  []logEntry `json:"FormattedCertificateLogs"`
}

type logEntry struct {
	FormattedDate    string `json:"FormattedDate"`
	FormattedTime    string `json:"FormattedTime"`
	Type             string `json:"Type"`
	CertificateLogID int    `json:"CertificateLogID"`
}

// buildPayload assembles the envelope: one log entry per provided time,
// tagged In/Out, each with a zero placeholder record id.
func buildPayload(req *Request, employeeID int) payload {
	var logs []logEntry
	if req.TimeIn != "" {
		logs = append(logs, logEntry{
			FormattedDate: req.Date,
			FormattedTime: req.TimeIn,
			Type:          "In",
		})
	}
	if req.TimeOut != "" {
		logs = append(logs, logEntry{
			FormattedDate: req.Date,
			FormattedTime: req.TimeOut,
			Type:          "Out",
		})
	}

	return payload{
		CertificateOfAttendance: certificate{
			CertificateTypeID:        certificateTypeOthers,
			CertificateTypeOthers:    req.Category,
			Remarks:                  req.Reason,
			Status:                   nil,
			EmployeeID:               employeeID,
			FormattedCertificateLogs: logs,
		},
	}
}
