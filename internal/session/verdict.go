package session

type Reason string

const (
	ReasonPartnerWentNext    Reason = "partner_went_next"
	ReasonPartnerLeftSession Reason = "partner_left_session"
	ReasonCallReplaced       Reason = "call_replaced"
	ReasonSelfInitiatedNext  Reason = "self_initiated_next"
	ReasonSelfInitiatedStop  Reason = "self_initiated_stop"
	ReasonBalanceExhausted   Reason = "balance_exhausted"
	ReasonConnectFailed      Reason = "connect_failed"
)

type RedirectAction string

const (
	RedirectFindNext   RedirectAction = "find_next"
	RedirectReturnHome RedirectAction = "return_home"
)

// Verdict is the final decision that a session has ended. Reason and
// Redirect never change once produced; CountdownSeconds reflects the UI
// grace remaining and counts down to zero.
type Verdict struct {
	Reason           Reason         `json:"reason"`
	Redirect         RedirectAction `json:"redirect"`
	CountdownSeconds int            `json:"countdownSeconds"`
}
