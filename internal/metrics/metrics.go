// Package metrics registers the expvar counters the gateway exposes on
// /debug/vars, adapted from the teacher's package-level ev* vars in
// constants.go into this shared package. The counters are package-level
// vars, registered once in the process-wide expvar namespace.
package metrics

import "expvar"

var (
	FramesRead        = expvar.NewInt("frames_read")
	FramesDropped     = expvar.NewInt("frames_dropped_on_send")
	BytesRead         = expvar.NewInt("bytes_read")
	CtrlWritesOK      = expvar.NewInt("control_writes_ok")
	CtrlWritesErr     = expvar.NewInt("control_writes_err")
	CtrlFramesDropped = expvar.NewInt("control_frames_dropped")
	SessionsActive    = expvar.NewInt("sessions_active")
	SessionsTotal     = expvar.NewInt("sessions_total")
	ClientsActive     = expvar.NewInt("clients_active")
	CommandsInFlight  = expvar.NewInt("commands_in_flight")
	CommandTimeouts   = expvar.NewInt("command_timeouts")
	NaluSPS           = expvar.NewInt("nalu_sps")
	NaluIDR           = expvar.NewInt("nalu_idr")
	KeyframeRequests  = expvar.NewInt("keyframe_requests")
)
