package aware

// Reason is the caller-facing failure reason delivered through the
// EventHandler and SessionHandler failure callbacks. Hardware status codes
// are translated into this small enum at the hal boundary.
type Reason uint8

const (
	// ReasonOther covers failures with no more specific translation,
	// including command timeouts.
	ReasonOther Reason = iota

	// ReasonInvalidArgs indicates the hardware rejected the request's
	// arguments.
	ReasonInvalidArgs

	// ReasonNoResources indicates the hardware is out of session or
	// queue space.
	ReasonNoResources

	// ReasonTxFail indicates an over-the-air transmission failure (no
	// acknowledgment from the peer).
	ReasonTxFail

	// ReasonIncompatibleConfig indicates a connect was rejected because
	// other clients are running a configuration this request cannot be
	// merged into.
	ReasonIncompatibleConfig

	// ReasonUsageDisabled indicates the feature is administratively
	// disabled.
	ReasonUsageDisabled

	// ReasonNotFound indicates the referenced client or session does
	// not exist.
	ReasonNotFound
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonOther:
		return "OTHER"
	case ReasonInvalidArgs:
		return "INVALID_ARGS"
	case ReasonNoResources:
		return "NO_RESOURCES"
	case ReasonTxFail:
		return "TX_FAIL"
	case ReasonIncompatibleConfig:
		return "INCOMPATIBLE_CONFIG"
	case ReasonUsageDisabled:
		return "USAGE_DISABLED"
	case ReasonNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// TerminateReason classifies why a discovery session ended.
type TerminateReason uint8

const (
	// TerminateDone indicates normal completion: requested stop, TTL
	// expiry or transmission count reached.
	TerminateDone TerminateReason = iota

	// TerminateFail indicates the session ended due to a failure.
	TerminateFail
)

// String returns the terminate reason name.
func (r TerminateReason) String() string {
	switch r {
	case TerminateDone:
		return "DONE"
	case TerminateFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}
