package billing

import "saascore/models"

// transitions lists every legal subscription status change. EXPIRED is terminal.
var transitions = map[models.SubscriptionStatus][]models.SubscriptionStatus{
	models.SubscriptionTrialing: {models.SubscriptionActive, models.SubscriptionExpired},
	models.SubscriptionActive:   {models.SubscriptionPastDue},
	models.SubscriptionPastDue:  {models.SubscriptionActive, models.SubscriptionExpired},
	models.SubscriptionExpired:  nil,
}

// CanTransition reports whether a subscription may move from one status to another.
func CanTransition(from, to models.SubscriptionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// activatable reports whether approving a payment activates a subscription in status s.
func activatable(s models.SubscriptionStatus) bool {
	return CanTransition(s, models.SubscriptionActive)
}
