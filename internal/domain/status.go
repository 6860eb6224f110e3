package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"

	StatusWaitingToPayDelivery Status = "waiting_to_pay_delivery"
	StatusDeliveryPaid         Status = "delivery_paid"
	StatusShipped              Status = "shipped"
	StatusPayedFull            Status = "payed_full"

	// legacy spelling still found in stored orders
	statusCancelled Status = "cancelled"
)

// SchemaVersion identifies one status vocabulary. V1 and V2 share the
// pending/completed/canceled set; V2 requires a reason on cancellation. V3
// replaces the set with a delivery and payment pipeline.
type SchemaVersion int

const (
	SchemaV1 SchemaVersion = iota + 1
	SchemaV2
	SchemaV3
)

var (
	ErrUnknownSchemaVersion = errors.New("unknown status schema version")
	ErrUnknownStatus        = errors.New("unknown status")
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
	ErrCancelReasonRequired = errors.New("cancel reason required")
)

func ParseSchemaVersion(s string) (SchemaVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "v1", "a":
		return SchemaV1, nil
	case "2", "v2", "b":
		return SchemaV2, nil
	case "3", "v3", "c", "":
		return SchemaV3, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSchemaVersion, s)
}

func (v SchemaVersion) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// StatusPredicate selects the statuses an aggregate should count.
type StatusPredicate func(Status) bool

// Vocabulary is the closed set of statuses for one schema version together
// with its transition table.
type Vocabulary struct {
	Version              SchemaVersion
	Statuses             []Status
	Default              Status
	Completed            Status
	Canceled             Status
	RequiresCancelReason bool
	CancelReasons        []string

	revenue     []Status
	transitions map[Status][]Status
}

var defaultCancelReasons = []string{"Didn't Respond", "No Valid TG", "Didn't Pay", "Other"}

var (
	vocabularyV1 = newCorrectableVocabulary(SchemaV1, false)
	vocabularyV2 = newCorrectableVocabulary(SchemaV2, true)
	vocabularyV3 = &Vocabulary{
		Version: SchemaV3,
		Statuses: []Status{
			StatusWaitingToPayDelivery,
			StatusDeliveryPaid,
			StatusShipped,
			StatusPayedFull,
			StatusCanceled,
		},
		Default:              StatusWaitingToPayDelivery,
		Completed:            StatusPayedFull,
		Canceled:             StatusCanceled,
		RequiresCancelReason: true,
		CancelReasons:        defaultCancelReasons,
		revenue:              []Status{StatusCompleted, StatusDeliveryPaid, StatusPayedFull},
		transitions: map[Status][]Status{
			StatusWaitingToPayDelivery: {StatusDeliveryPaid, StatusShipped, StatusPayedFull, StatusCanceled},
			StatusDeliveryPaid:         {StatusShipped, StatusPayedFull, StatusCanceled},
			StatusShipped:              {StatusPayedFull, StatusCanceled},
			StatusPayedFull:            {StatusCanceled},
			StatusCanceled:             {StatusWaitingToPayDelivery},
		},
	}
)

// newCorrectableVocabulary builds the pending/completed/canceled set. Every
// move between distinct statuses is allowed so an admin can correct a
// mistaken decision.
func newCorrectableVocabulary(version SchemaVersion, requireReason bool) *Vocabulary {
	statuses := []Status{StatusPending, StatusCompleted, StatusCanceled}
	transitions := make(map[Status][]Status, len(statuses))
	for _, from := range statuses {
		for _, to := range statuses {
			if from != to {
				transitions[from] = append(transitions[from], to)
			}
		}
	}

	var reasons []string
	if requireReason {
		reasons = defaultCancelReasons
	}

	return &Vocabulary{
		Version:              version,
		Statuses:             statuses,
		Default:              StatusPending,
		Completed:            StatusCompleted,
		Canceled:             StatusCanceled,
		RequiresCancelReason: requireReason,
		CancelReasons:        reasons,
		revenue:              []Status{StatusCompleted},
		transitions:          transitions,
	}
}

func VocabularyFor(version SchemaVersion) (*Vocabulary, error) {
	switch version {
	case SchemaV1:
		return vocabularyV1, nil
	case SchemaV2:
		return vocabularyV2, nil
	case SchemaV3:
		return vocabularyV3, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownSchemaVersion, int(version))
}

// Normalize maps an empty status to the default and the legacy "cancelled"
// spelling to "canceled". Other values are returned unchanged.
func (v *Vocabulary) Normalize(s Status) Status {
	s = Status(strings.ToLower(strings.TrimSpace(string(s))))
	switch s {
	case "":
		return v.Default
	case statusCancelled:
		return StatusCanceled
	}
	return s
}

func (v *Vocabulary) Has(s Status) bool {
	return slices.Contains(v.Statuses, v.Normalize(s))
}

// IsRevenue reports whether money has been received for an order in status s.
func (v *Vocabulary) IsRevenue(s Status) bool {
	return slices.Contains(v.revenue, v.Normalize(s))
}

func (v *Vocabulary) CanTransition(from, to Status) bool {
	from, to = v.Normalize(from), v.Normalize(to)
	if !v.Has(from) || !v.Has(to) {
		return false
	}
	if from == to {
		return true
	}
	return slices.Contains(v.transitions[from], to)
}

// Next lists the statuses reachable from s, excluding s itself.
func (v *Vocabulary) Next(s Status) []Status {
	return slices.Clone(v.transitions[v.Normalize(s)])
}

// Transition returns a copy of o moved to status to. The cancel reason is kept
// only when the target is the cancel status and cleared otherwise. Nothing is
// persisted.
func Transition(o Order, to Status, reason string, vocab *Vocabulary) (Order, error) {
	from := vocab.Normalize(o.Status)
	to = vocab.Normalize(to)

	if !vocab.Has(to) {
		return o, fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !vocab.Has(from) {
		return o, fmt.Errorf("%w: current status %q", ErrUnknownStatus, from)
	}
	if !vocab.CanTransition(from, to) {
		return o, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}

	next := o
	next.Status = to
	next.CancelReason = nil

	if to == vocab.Canceled {
		reason = strings.TrimSpace(reason)
		if reason == "" && vocab.RequiresCancelReason {
			return o, ErrCancelReasonRequired
		}
		if reason != "" {
			next.CancelReason = &reason
		}
	}

	return next, nil
}

// MigrateStatus maps a status from one schema version to another. Statuses
// that do not belong to the source vocabulary are rejected.
func MigrateStatus(s Status, from, to SchemaVersion) (Status, error) {
	src, err := VocabularyFor(from)
	if err != nil {
		return "", err
	}
	dst, err := VocabularyFor(to)
	if err != nil {
		return "", err
	}

	s = src.Normalize(s)
	if !src.Has(s) {
		return "", fmt.Errorf("%w: %q in schema %s", ErrUnknownStatus, s, from)
	}

	fromPipeline, toPipeline := from == SchemaV3, to == SchemaV3
	switch {
	case fromPipeline == toPipeline:
		return s, nil
	case toPipeline:
		return map[Status]Status{
			StatusPending:   StatusWaitingToPayDelivery,
			StatusCompleted: StatusPayedFull,
			StatusCanceled:  StatusCanceled,
		}[s], nil
	default:
		switch s {
		case StatusPayedFull:
			return StatusCompleted, nil
		case StatusCanceled:
			return StatusCanceled, nil
		}
		return dst.Default, nil
	}
}

// MigrateOrder rewrites the order status into another schema version and
// clears a cancel reason the new status cannot carry.
func MigrateOrder(o Order, from, to SchemaVersion) (Order, error) {
	status, err := MigrateStatus(o.Status, from, to)
	if err != nil {
		return o, err
	}
	o.Status = status
	if status != StatusCanceled {
		o.CancelReason = nil
	}
	return o, nil
}
