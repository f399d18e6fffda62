package order

import "slices"

// transitions lists, per source status, the allowed targets and the roles
// that may request them.
var transitions = map[Status]map[Status][]Role{
	StatusPendingConfirmation: {
		StatusProcessing: {RoleSeller},
		StatusCancelled:  {RoleBuyer, RoleSeller},
	},
	StatusProcessing: {
		StatusShipping:  {RoleSeller},
		StatusCancelled: {RoleBuyer, RoleSeller},
	},
	StatusShipping: {
		StatusDelivered: {RoleSeller},
		StatusCancelled: {RoleBuyer, RoleSeller},
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// forward is the seller's happy path.
var forward = map[Status]Status{
	StatusPendingConfirmation: StatusProcessing,
	StatusProcessing:          StatusShipping,
	StatusShipping:            StatusDelivered,
}

// CancelPolicy controls how late in the lifecycle an order may still be
// cancelled. Pending orders are always cancellable.
type CancelPolicy struct {
	AllowProcessing bool
	AllowShipping   bool
}

// DefaultCancelPolicy allows cancellation until delivery.
func DefaultCancelPolicy() CancelPolicy {
	return CancelPolicy{AllowProcessing: true, AllowShipping: true}
}

func (p CancelPolicy) allows(from Status) bool {
	switch from {
	case StatusPendingConfirmation:
		return true
	case StatusProcessing:
		return p.AllowProcessing
	case StatusShipping:
		return p.AllowShipping
	default:
		return false
	}
}

// CanTransition reports whether the edge from -> to exists and whether role
// may take it.
func CanTransition(from, to Status, role Role) (edge, permitted bool) {
	roles, ok := transitions[from][to]
	if !ok {
		return false, false
	}
	return true, slices.Contains(roles, role)
}

// Next returns the forward successor of s.
func Next(s Status) (Status, bool) {
	next, ok := forward[s]
	return next, ok
}
