package hal

import "github.com/aware-protocol/aware-go/pkg/aware"

// Status is a firmware status code carried in command responses and
// session-terminated events. The values mirror the firmware control
// protocol and are translated into aware.Reason before reaching callers.
type Status uint16

// Protocol response codes.
const (
	StatusSuccess           Status = 0
	StatusTimeout           Status = 1
	StatusEngineFailure     Status = 2
	StatusInvalidMsgVersion Status = 3
	StatusInvalidMsgLen     Status = 4
	StatusInvalidMsgID      Status = 5
	StatusInvalidHandle     Status = 6
	StatusNoSpaceAvailable  Status = 7
	StatusInvalidPublish    Status = 8
	StatusInvalidTxType     Status = 9
	StatusInvalidMatchAlgo  Status = 10
	StatusDisableInProgress Status = 11
	StatusNotAllowed        Status = 22
	StatusNoOtaAck          Status = 23
	StatusTxFail            Status = 24
	StatusAlreadyEnabled    Status = 25
)

// Configuration response codes.
const (
	StatusInvalidRssiClose       Status = 4096
	StatusInvalidRssiMiddle      Status = 4097
	StatusInvalidHopCountLimit   Status = 4098
	StatusInvalidMasterPref      Status = 4099
	StatusInvalidClusterLow      Status = 4100
	StatusInvalidClusterHigh     Status = 4101
	StatusInvalidScanPeriod      Status = 4102
	StatusInvalidRssiProximity   Status = 4103
	StatusInvalidScanChannel     Status = 4104
	StatusInvalidBandConfigFlags Status = 4117
	StatusInvalidDwInterval      Status = 4120
	StatusInvalidDbInterval      Status = 4121
)

// Session termination codes.
const (
	StatusTerminatedInvalid           Status = 8192
	StatusTerminatedTimeout           Status = 8193
	StatusTerminatedUserRequest       Status = 8194
	StatusTerminatedFailure           Status = 8195
	StatusTerminatedCountReached      Status = 8196
	StatusTerminatedEngineShutdown    Status = 8197
	StatusTerminatedDisableInProgress Status = 8198
)

// ConfigReason translates a status from an enable/configure response into
// a connect failure reason. Configuration-range rejections map to
// InvalidArgs; everything else is Other.
func ConfigReason(s Status) aware.Reason {
	switch s {
	case StatusInvalidRssiClose, StatusInvalidRssiMiddle,
		StatusInvalidHopCountLimit, StatusInvalidMasterPref,
		StatusInvalidClusterLow, StatusInvalidClusterHigh,
		StatusInvalidScanPeriod, StatusInvalidRssiProximity,
		StatusInvalidScanChannel, StatusInvalidBandConfigFlags,
		StatusInvalidDwInterval, StatusInvalidDbInterval:
		return aware.ReasonInvalidArgs
	}
	return aware.ReasonOther
}

// SessionReason translates a status from a session-config or send-message
// response into a session failure reason.
func SessionReason(s Status) aware.Reason {
	switch s {
	case StatusNoSpaceAvailable:
		return aware.ReasonNoResources
	case StatusInvalidPublish, StatusInvalidTxType, StatusInvalidMatchAlgo:
		return aware.ReasonInvalidArgs
	case StatusNoOtaAck, StatusTxFail:
		return aware.ReasonTxFail
	}
	return aware.ReasonOther
}

// TerminateReason translates a session-terminated status into the
// caller-facing terminate reason. Planned endings (requested stop, TTL
// expiry, transmission count reached) map to Done; everything else is a
// failure.
func TerminateReason(s Status) aware.TerminateReason {
	switch s {
	case StatusTerminatedTimeout, StatusTerminatedUserRequest,
		StatusTerminatedCountReached:
		return aware.TerminateDone
	}
	return aware.TerminateFail
}
