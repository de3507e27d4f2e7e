package tracking

import "deliveryTracking/models"

// transitions is the allowed-transition table. Absent sources are terminal.
// NEARBY may revert to EN_ROUTE when the rider moves away from the
// destination; cancellation is only reachable before pickup.
var transitions = map[models.DeliveryStatus][]models.DeliveryStatus{
	models.DeliveryStatusPending:  {models.DeliveryStatusAssigned, models.DeliveryStatusCancelled},
	models.DeliveryStatusAssigned: {models.DeliveryStatusPickedUp, models.DeliveryStatusCancelled, models.DeliveryStatusFailed},
	models.DeliveryStatusPickedUp: {models.DeliveryStatusEnRoute, models.DeliveryStatusFailed},
	models.DeliveryStatusEnRoute:  {models.DeliveryStatusNearby, models.DeliveryStatusFailed},
	models.DeliveryStatusNearby:   {models.DeliveryStatusDelivered, models.DeliveryStatusFailed, models.DeliveryStatusEnRoute},
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to models.DeliveryStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from s.
func IsTerminal(s models.DeliveryStatus) bool {
	switch s {
	case models.DeliveryStatusDelivered, models.DeliveryStatusFailed, models.DeliveryStatusCancelled:
		return true
	}
	return false
}

// Targets returns the statuses reachable from from. The returned slice is
// shared; callers must not mutate it.
func Targets(from models.DeliveryStatus) []models.DeliveryStatus {
	return transitions[from]
}

// ValidStatus reports whether s is one of the known delivery statuses.
func ValidStatus(s models.DeliveryStatus) bool {
	if _, ok := transitions[s]; ok {
		return true
	}
	return IsTerminal(s)
}
