package orders

import "github.com/angelmondragon/storefront/pkg/enums"

// TransitionPolicy decides whether an order may move between two statuses.
type TransitionPolicy interface {
	Allow(from, to enums.OrderStatus) bool
}

type strictPolicy struct{}

var strictTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
}

// StrictPolicy only allows forward fulfilment moves and cancellation before delivery.
func StrictPolicy() TransitionPolicy { return strictPolicy{} }

func (strictPolicy) Allow(from, to enums.OrderStatus) bool {
	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type permissivePolicy struct{}

// PermissivePolicy allows any move between known statuses.
func PermissivePolicy() TransitionPolicy { return permissivePolicy{} }

func (permissivePolicy) Allow(from, to enums.OrderStatus) bool {
	return from.IsValid() && to.IsValid()
}

// PolicyFor picks the policy selected by configuration.
func PolicyFor(permissive bool) TransitionPolicy {
	if permissive {
		return PermissivePolicy()
	}
	return StrictPolicy()
}

// StatusDisplay is how a status is presented to shoppers and admins.
type StatusDisplay struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
	Icon  string `json:"icon"`
}

var displays = map[enums.OrderStatus]StatusDisplay{
	enums.OrderStatusProcessing: {Label: "Processing", Tone: "yellow", Icon: "clock"},
	enums.OrderStatusShipped:    {Label: "Shipped", Tone: "blue", Icon: "truck"},
	enums.OrderStatusDelivered:  {Label: "Delivered", Tone: "green", Icon: "check"},
	enums.OrderStatusCancelled:  {Label: "Cancelled", Tone: "red", Icon: "x-circle"},
}

// Display maps a status to its presentation. Unknown values render neutral.
func Display(status enums.OrderStatus) StatusDisplay {
	if d, ok := displays[status]; ok {
		return d
	}
	return StatusDisplay{Label: string(status), Tone: "gray", Icon: "help-circle"}
}
