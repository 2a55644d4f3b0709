package inference

import (
	"context"

	"foundationsd/internal/backend"
)

// Diagnostic messages reported for each availability state.
const (
	MsgAvailable           = "Model is available"
	MsgDeviceNotEligible   = "Device is not eligible for on-device inference"
	MsgFeatureNotEnabled   = "On-device inference is not enabled in settings"
	MsgModelNotReady       = "Model is downloading or not ready yet"
	MsgReasonUnknown       = "Model is unavailable for unknown reason"
	MsgAvailabilityUnknown = "Model availability unknown"
)

// Oracle reads the capability's readiness. Every call queries the backend;
// nothing is cached.
type Oracle struct {
	cap backend.Capability
}

func NewOracle(cap backend.Capability) *Oracle { return &Oracle{cap: cap} }

func (o *Oracle) IsAvailable(ctx context.Context) bool {
	return o.cap.Availability(ctx).Ready
}

func (o *Oracle) DiagnosticMessage(ctx context.Context) string {
	return Message(o.cap.Availability(ctx))
}

// Check returns the flag and message from a single availability read, so the
// two always agree.
func (o *Oracle) Check(ctx context.Context) (bool, string) {
	a := o.cap.Availability(ctx)
	return a.Ready, Message(a)
}

// Message maps an availability state to its diagnostic message.
func Message(a backend.Availability) string {
	if a.Ready {
		return MsgAvailable
	}
	switch a.Reason {
	case backend.ReasonDeviceNotEligible:
		return MsgDeviceNotEligible
	case backend.ReasonFeatureNotEnabled:
		return MsgFeatureNotEnabled
	case backend.ReasonModelNotReady:
		return MsgModelNotReady
	case backend.ReasonUnknown:
		return MsgReasonUnknown
	default:
		return MsgAvailabilityUnknown
	}
}
