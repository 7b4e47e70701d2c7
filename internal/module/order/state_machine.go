package order

// StateMachine validates and executes order status transitions.
type StateMachine struct {
	transitions map[Status][]Status
}

// NewStateMachine creates a new order state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[Status][]Status{
			StatusPaymentPending:     {StatusOrderPlaced, StatusCancelRequested, StatusPartiallyCancelled, StatusCancelled},
			StatusOrderPlaced:        {StatusProcessing, StatusCancelRequested, StatusPartiallyCancelled, StatusCancelled},
			StatusProcessing:         {StatusOutForDelivery, StatusCancelRequested, StatusPartiallyCancelled, StatusCancelled},
			StatusPartiallyCancelled: {StatusProcessing, StatusOutForDelivery, StatusCancelRequested, StatusPartiallyCancelled, StatusCancelled},
			StatusCancelRequested:    {StatusPaymentPending, StatusOrderPlaced, StatusProcessing, StatusPartiallyCancelled, StatusCancelled},
			StatusOutForDelivery:     {StatusDelivered},
			StatusDelivered:          {}, // Terminal state
			StatusCancelled:          {StatusRefundProcessing},
			StatusRefundProcessing:   {}, // Terminal state
		},
	}
}

// IsKnown reports whether status is a valid order status.
func (sm *StateMachine) IsKnown(status Status) bool {
	_, ok := sm.transitions[status]
	return ok
}

// CanTransition checks if a transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to Status) bool {
	for _, s := range sm.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves order to status to.
func (sm *StateMachine) Transition(order *Order, to Status) error {
	if !sm.CanTransition(order.Status, to) {
		return ErrInvalidTransition.WithMessage("cannot transition from %s to %s", order.Status, to)
	}
	order.Status = to
	return nil
}

// GetAllowedTransitions returns all allowed transitions from the current state.
func (sm *StateMachine) GetAllowedTransitions(from Status) []Status {
	allowed := sm.transitions[from]
	result := make([]Status, len(allowed))
	copy(result, allowed)
	return result
}
