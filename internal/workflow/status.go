// Package workflow models the abstract review pipeline as a pure state machine.
package workflow

import (
	"fmt"
	"strings"
)

// Status is the review stage a submission is in.
type Status string

const (
	StatusSubmitted                  Status = "Submitted"
	StatusAssignedToEditor           Status = "AssignedToEditor"
	StatusReviewedByEditor           Status = "ReviewedByEditor"
	StatusAssignedToConferenceEditor Status = "AssignedToConferenceEditor"
	StatusReviewedByConferenceEditor Status = "ReviewedByConferenceEditor"
	StatusAccepted                   Status = "Accepted"
	StatusRejected                   Status = "Rejected"
)

// pipeline lists the non-rejected statuses in progression order.
var pipeline = []Status{
	StatusSubmitted,
	StatusAssignedToEditor,
	StatusReviewedByEditor,
	StatusAssignedToConferenceEditor,
	StatusReviewedByConferenceEditor,
	StatusAccepted,
}

// Statuses returns every known status, pipeline order first.
func Statuses() []Status {
	out := make([]Status, 0, len(pipeline)+1)
	out = append(out, pipeline...)
	return append(out, StatusRejected)
}

// Rank is the position of s in the pipeline. Rejected ranks above every
// pipeline status and unknown values rank -1.
func (s Status) Rank() int {
	for i, p := range pipeline {
		if p == s {
			return i
		}
	}
	if s == StatusRejected {
		return len(pipeline)
	}
	return -1
}

func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// ParseStatus accepts the canonical value case-insensitively.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	for _, s := range Statuses() {
		if strings.EqualFold(string(s), raw) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// Decision is a recorded stage outcome.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// Verdict is what a reviewer submits. It maps onto a Decision.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReject Verdict = "reject"
)

func (v Verdict) Valid() bool {
	return v == VerdictAccept || v == VerdictReject
}

// Decision converts the verdict into the stored outcome.
func (v Verdict) Decision() Decision {
	if v == VerdictReject {
		return DecisionRejected
	}
	return DecisionAccepted
}
