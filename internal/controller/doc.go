// Package controller implements the sync client for one Niko Home Control
// controller speaking the Hobby API.
//
// A Client owns a transport Session, the device Registry, the outbound
// batcher, and the change dispatcher. After the session connects it
// subscribes to the event and response topics and asks for a devices.list
// snapshot; the client becomes Connected when the first snapshot lands.
// From then on devices.status events patch the registry and every change is
// fanned out to subscribers as a full device.
//
// # Architecture
//
//	          SetProperties ───► batcher ──(window)──► devices.control
//	                                                        │
//	┌─────────┐  evt/rsp  ┌──────────┐  Replace/Apply  ┌──────────┐
//	│ Session │──────────►│  Client  │────────────────►│ Registry │
//	└─────────┘           └──────────┘                 └──────────┘
//	     ▲                     │
//	     │ Dialer              ▼
//	                     dispatcher ──► OnDeviceChange / OnDevice / OnStateChange
//
// # Usage
//
//	c, err := controller.New(controller.Options{
//	    ID:          "home",
//	    Credentials: controller.Credentials{Username: "hobby", Token: token},
//	    Dialer:      mqtt.NewDialer(mqttOpts),
//	    Logger:      log.Component("controller"),
//	})
//	if err != nil {
//	    return err
//	}
//	c.OnDeviceChange(func(d device.Device) { ... })
//	if err := c.Connect(); err != nil {
//	    return err
//	}
//	defer c.Disconnect()
//
//	err = c.SetProperties(uuid, device.P(device.PropStatus, "On"))
//
// # Writes
//
// Writes are accepted only while Connected. Writes made within one batch
// window are merged per device (last value wins per key) and sent as a
// single devices.control command. SetPropertiesWait blocks until that
// command is published. Queued writes are resolved with ErrDiscarded when
// the connection drops.
//
// # Thread Safety
//
// All Client methods are safe for concurrent use. Subscribers run outside
// the client's locks, in event order, and may call back into the client.
package controller
