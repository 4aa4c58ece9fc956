package models

type SOSReason string

const (
	SOSReasonManual      SOSReason = "manual"
	SOSReasonNoResponse  SOSReason = "no_response"
	SOSReasonNeedsHelp   SOSReason = "needs_help"
	SOSReasonUnreachable SOSReason = "unreachable"
)
