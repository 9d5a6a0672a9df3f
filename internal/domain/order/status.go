package order

import "github.com/go-faster/errors"

// Status is the order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// ErrUnknownStatus is returned by ParseStatus for an unrecognised value.
var ErrUnknownStatus = errors.New("unknown order status")

// forward lists the happy-path successor of each non-terminal status.
var forward = map[Status]Status{
	StatusPending:    StatusConfirmed,
	StatusConfirmed:  StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return st, nil
	default:
		return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
	}
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> to is a legal transition.
func (s Status) CanTransitionTo(to Status) bool {
	if s.Terminal() {
		return false
	}
	if to == StatusCancelled || to == StatusRefunded {
		return true
	}
	next, ok := forward[s]
	return ok && next == to
}

// releasesStock reports whether entering s puts the order's items back on
// the shelf.
func (s Status) releasesStock() bool {
	return s == StatusCancelled || s == StatusRefunded
}
