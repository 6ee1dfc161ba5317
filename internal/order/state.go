package order

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusApproved  Status = "APPROVED"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusCancelled Status = "CANCELLED"
)

// Trigger is an input that may move an order to another status.
type Trigger string

const (
	TriggerStockReserved Trigger = "STOCK_RESERVED"
	TriggerOutOfStock    Trigger = "OUT_OF_STOCK"
	TriggerCancel        Trigger = "CANCEL"
	TriggerPaid          Trigger = "PAID"
	TriggerShip          Trigger = "SHIP"
)

// transitions is the complete state graph. A (status, trigger) pair that is
// missing here is ignored.
var transitions = map[Status]map[Trigger]Status{
	StatusCreated: {
		TriggerStockReserved: StatusApproved,
		TriggerOutOfStock:    StatusCancelled,
		TriggerCancel:        StatusCancelled,
	},
	StatusApproved: {
		TriggerPaid: StatusPaid,
	},
	StatusPaid: {
		TriggerShip: StatusShipped,
	},
}

// Next returns the status a trigger leads to from the given status.
func Next(from Status, trigger Trigger) (Status, bool) {
	to, ok := transitions[from][trigger]
	return to, ok
}

// Terminal reports whether no trigger can move an order out of s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusApproved, StatusPaid, StatusShipped, StatusCancelled:
		return true
	}
	return false
}
