package checkout

type Status string

const (
	StatusCreated  Status = "created"
	StatusReserved Status = "reserved"
	StatusPaid     Status = "paid"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusFailed   Status = "failed"
)

// Client-observed subset of the order service state machine. Only
// reserved -> canceled is initiated from here; everything else is asserted
// upstream and merely observed.
var validNext = map[Status]map[Status]bool{
	StatusCreated:  {StatusReserved: true, StatusCanceled: true, StatusFailed: true},
	StatusReserved: {StatusPaid: true, StatusCanceled: true, StatusExpired: true, StatusFailed: true},
	StatusPaid:     {},
	StatusCanceled: {},
	StatusExpired:  {},
	StatusFailed:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether no further transition can be observed.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusCanceled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Negative is true for terminal states that end a checkout without payment.
func (s Status) Negative() bool {
	return s == StatusCanceled || s == StatusExpired || s == StatusFailed
}

// Dispatchable reports whether delivery can be bound to an order in this state.
func (s Status) Dispatchable() bool {
	return s == StatusReserved || s == StatusPaid
}
