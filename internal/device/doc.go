// Package device provides the device model and in-memory Device Registry
// for one Niko Home Control controller.
//
// The registry is the authoritative view of what the controller reported:
// it is rebuilt from every devices.list snapshot and patched by each
// devices.status event. Nothing is persisted; a restart always starts from a
// fresh snapshot.
//
// # Architecture
//
//	 devices.list response             devices.status event
//	          │                                 │
//	          ▼                                 ▼
//	┌──────────────────┐            ┌──────────────────────┐
//	│ Registry.Replace │            │    Registry.Apply    │
//	│ • atomic swap    │            │ • fast path: same    │
//	│ • snapshot order │            │   count, known keys  │
//	│ • dedupe keys    │            │ • else key-wise merge│
//	└──────────────────┘            └──────────────────────┘
//	          │                                 │
//	          └──────────► full Device ◄────────┘
//	                    (deep copy, never a diff)
//
// # Key Types
//
//   - Device: one controller device (Uuid, Name, Type, Model, Properties)
//   - Property: a single-key record such as {"Status":"On"}
//   - Properties: ordered records with no duplicate keys
//   - Type / Model: classification used to pick a consumer adapter
//   - Update: partial property push for one UUID
//
// # Usage
//
//	reg := device.NewRegistry()
//	reg.SetLogger(log)
//
//	reg.Replace(snapshot)
//	if d, ok := reg.Apply(device.Update{UUID: id, Properties: props}); ok {
//	    fmt.Println(d.Property(device.PropStatus))
//	}
//
//	lights := reg.ByTypeAndModel(device.TypeRelay, device.ModelLight, device.ModelSocket)
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Returned devices are deep
// copies and may be modified freely.
package device
