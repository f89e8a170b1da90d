// Package protocol implements the Niko Home Control Hobby API wire codec.
//
// The Hobby API is JSON over MQTT on three topics:
//
//	hobby/control/devices/cmd   client → controller  devices.list, devices.control
//	hobby/control/devices/rsp   controller → client  replies (devices.list snapshot)
//	hobby/control/devices/evt   controller → client  devices.status pushes
//
// Every message is an envelope {"Method": ..., "Params": [{...}]}. Only the
// first Params entry is meaningful.
//
// The codec is pure and stateless. Decode failures are returned as errors
// wrapping ErrMalformedPayload; callers log and drop them.
package protocol
