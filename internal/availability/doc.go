// Package availability decides whether devices that consumers depend on are
// usable right now.
//
// A device is available when its controller is known, the controller is
// connected, and the device is still present in the controller's list under
// the same type and model. Monitor re-runs the check on a fixed interval and
// reports transitions only.
//
// # Usage
//
//	mon := availability.NewMonitor(source, 10*time.Second)
//	mon.OnChange(func(st availability.Status) {
//	    hub.Broadcast("device.availability", st)
//	})
//	mon.Track(availability.Target{ControllerID: "home", UUID: id, Type: d.Type, Model: d.Model})
//	mon.Start(ctx)
//	defer mon.Stop()
package availability
