// Package mqtt provides the MQTT transport to a Niko Home Control
// controller's embedded broker.
//
// It implements controller.Dialer and controller.Session on top of
// paho.mqtt.golang:
//   - TLS to port 8884 by default, accepting the controller's self-signed certificate
//   - Username and Hobby API token as MQTT credentials
//   - Initial connection retried at a fixed interval, each failure reported
//   - Auto-reconnect after a lost connection
//   - Handler events serialised onto one goroutine, in arrival order
//
// # Architecture
//
//	paho callbacks (connect, lost, message)
//	          │  post (never blocks)
//	          ▼
//	    event queue ──► run goroutine ──► SessionHandlers
//
// Because handlers run on the session's own goroutine, an OnConnect
// handler may call Subscribe and wait for the SUBACK without stalling
// paho's network loop.
//
// # Security Considerations
//
//   - Certificate verification is off unless tls.verify is set
//   - Rejected credentials surface as controller.ErrUnauthorized
//   - Plain TCP (tls.disabled) is meant for test brokers only
//
// # Usage
//
//	opts, err := mqtt.OptionsFromConfig(cfg.Controllers[0])
//	if err != nil {
//	    return err
//	}
//	opts.Logger = log.Component("mqtt")
//	dialer, err := mqtt.NewDialer(opts)
//	if err != nil {
//	    return err
//	}
//	client, err := controller.New(controller.Options{ID: "home", Dialer: dialer, ...})
package mqtt
