package participation

import (
	"fmt"
	"strings"
)

type State int

const (
	CollectingName State = iota
	RequestingPayment
	AwaitingSettlement
	// ManualCheck is entered when the push channel gave up; the user is asked
	// to check the payment status manually.
	ManualCheck
	Settled
	Failed
	Cancelled
	TimedOut
)

var stateNames = map[State]string{
	CollectingName:     "collecting_name",
	RequestingPayment:  "requesting_payment",
	AwaitingSettlement: "awaiting_settlement",
	ManualCheck:        "manual_check",
	Settled:            "settled",
	Failed:             "failed",
	Cancelled:          "cancelled",
	TimedOut:           "timed_out",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible. Failed is not
// terminal: a new name submission starts a fresh attempt.
func (s State) Terminal() bool {
	return s == Settled || s == Cancelled || s == TimedOut
}

// TimeoutPolicy decides what happens when a payment is not settled within
// the configured ceiling.
type TimeoutPolicy int

const (
	// TimeoutWarn keeps waiting and raises a warning on the snapshot.
	TimeoutWarn TimeoutPolicy = iota
	// TimeoutExpire moves the session to TimedOut and releases the channel.
	TimeoutExpire
)

func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn":
		return TimeoutWarn, nil
	case "expire":
		return TimeoutExpire, nil
	default:
		return TimeoutWarn, fmt.Errorf("unknown timeout policy %q (want warn or expire)", s)
	}
}
