package models

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	StatusInitiated         PaymentStatus = "INITIATED"
	StatusPending           PaymentStatus = "PENDING"
	StatusProcessing        PaymentStatus = "PROCESSING"
	StatusSucceeded         PaymentStatus = "SUCCEEDED"
	StatusFailed            PaymentStatus = "FAILED"
	StatusCancelled         PaymentStatus = "CANCELLED"
	StatusRefunded          PaymentStatus = "REFUNDED"
	StatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// Trigger names a state machine transition request.
type Trigger string

const (
	TriggerProcess       Trigger = "process"
	TriggerComplete      Trigger = "complete"
	TriggerFail          Trigger = "fail"
	TriggerCancel        Trigger = "cancel"
	TriggerRefund        Trigger = "refund"
	TriggerPartialRefund Trigger = "partial_refund"
)

// transitions is the single authority for legal status changes. Every
// mutating operation consults it; nothing else decides transitions.
var transitions = map[PaymentStatus]map[Trigger]PaymentStatus{
	StatusInitiated: {
		TriggerProcess: StatusProcessing,
		TriggerFail:    StatusFailed,
		TriggerCancel:  StatusCancelled,
	},
	StatusPending: {
		TriggerProcess: StatusProcessing,
		TriggerFail:    StatusFailed,
		TriggerCancel:  StatusCancelled,
	},
	StatusProcessing: {
		TriggerComplete: StatusSucceeded,
		TriggerFail:     StatusFailed,
	},
	StatusSucceeded: {
		TriggerRefund:        StatusRefunded,
		TriggerPartialRefund: StatusPartiallyRefunded,
	},
	StatusPartiallyRefunded: {
		TriggerRefund: StatusRefunded,
	},
}

// triggerTargets maps each trigger to the status it lands in. Used to treat
// redelivered signals against an already-arrived state as idempotent no-ops.
var triggerTargets = map[Trigger]PaymentStatus{
	TriggerProcess:       StatusProcessing,
	TriggerComplete:      StatusSucceeded,
	TriggerFail:          StatusFailed,
	TriggerCancel:        StatusCancelled,
	TriggerRefund:        StatusRefunded,
	TriggerPartialRefund: StatusPartiallyRefunded,
}

// Apply resolves a trigger against the transition table. It returns the
// resulting status, whether the trigger was a no-op (the payment already sits
// in the trigger's target state, e.g. a redelivered completion callback), or
// an InvalidTransitionError.
func Apply(from PaymentStatus, trigger Trigger) (to PaymentStatus, noop bool, err error) {
	if to, ok := transitions[from][trigger]; ok {
		return to, false, nil
	}
	if triggerTargets[trigger] == from {
		return from, true, nil
	}
	return from, false, &InvalidTransitionError{From: from, Trigger: trigger}
}

// IsTerminal reports whether no trigger can move the payment further,
// other than refunds out of SUCCEEDED / PARTIALLY_REFUNDED.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusRefunded
}
