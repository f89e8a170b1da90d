package device

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Device is one entry of the controller's device list.
// JSON field names follow the controller wire format.
type Device struct {
	UUID       string `json:"Uuid"`
	Name       string `json:"Name"`
	Model      Model  `json:"Model"`
	Type       Type   `json:"Type"`
	Technology string `json:"Technology,omitempty"`
	Online     Flag   `json:"Online"`

	// Properties holds single-key records; no key appears twice.
	Properties Properties `json:"Properties"`

	// PropertyDefinitions is carried through untouched for consumers that
	// need value ranges or allowed enumerations.
	PropertyDefinitions json.RawMessage `json:"PropertyDefinitions,omitempty"`
}

// DeepCopy creates a complete independent copy of the Device.
// Properties and raw definitions are cloned so the registry cache is never
// shared with callers.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Properties = d.Properties.Clone()
	if d.PropertyDefinitions != nil {
		cpy.PropertyDefinitions = append(json.RawMessage(nil), d.PropertyDefinitions...)
	}
	return &cpy
}

// Property returns the value of key, if the device declares it.
func (d *Device) Property(key string) (string, bool) {
	return d.Properties.Get(key)
}

// Update is a partial property push for one device, as carried by status
// events and control commands.
type Update struct {
	UUID       string     `json:"Uuid"`
	Properties Properties `json:"Properties"`
}

// Type partitions devices into functional classes.
type Type string

// Device types reported by the controller.
const (
	TypeRelay       Type = "relay"
	TypeDimmer      Type = "dimmer"
	TypeMotor       Type = "motor"
	TypeAction      Type = "action"
	TypeEnergyHome  Type = "energyhome"
	TypeMultisensor Type = "multisensor"
	TypeThermostat  Type = "thermostat"
	TypeGeneric     Type = "generic"
)

var knownTypes = map[Type]struct{}{
	TypeRelay: {}, TypeDimmer: {}, TypeMotor: {}, TypeAction: {},
	TypeEnergyHome: {}, TypeMultisensor: {}, TypeThermostat: {}, TypeGeneric: {},
}

// Known reports whether t is one of the declared device types.
// Unknown types are still stored; the controller is authoritative.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Model specialises a device within its Type.
type Model string

// Device models reported by the controller.
const (
	ModelLight           Model = "light"
	ModelSocket          Model = "socket"
	ModelSwitchedFan     Model = "switched-fan"
	ModelSwitchedGeneric Model = "switched-generic"
	ModelDimmer          Model = "dimmer"
	ModelFan             Model = "fan"
	ModelRollDownShutter Model = "rolldownshutter"
	ModelSunBlind        Model = "sunblind"
	ModelGate            Model = "gate"
	ModelVenetianBlind   Model = "venetianblind"
	ModelGarageDoor      Model = "garagedoor"
	ModelAllOff          Model = "alloff"
	ModelGeneric         Model = "generic"

	ModelThermoSwitchX1         Model = "thermoswitchx1"
	ModelThermoSwitchX1Feedback Model = "thermoswitchx1feedback"
	ModelThermoSwitchX2Feedback Model = "thermoswitchx2feedback"
	ModelThermoSwitchX4Feedback Model = "thermoswitchx4feedback"
	ModelThermoSwitchX6Feedback Model = "thermoswitchx6feedback"
	ModelThermoVentilation      Model = "thermoventilationcontrollerfeedback"
)

var knownModels = map[Model]struct{}{
	ModelLight: {}, ModelSocket: {}, ModelSwitchedFan: {}, ModelSwitchedGeneric: {},
	ModelDimmer: {}, ModelFan: {}, ModelRollDownShutter: {}, ModelSunBlind: {},
	ModelGate: {}, ModelVenetianBlind: {}, ModelGarageDoor: {}, ModelAllOff: {},
	ModelGeneric: {}, ModelThermoSwitchX1: {}, ModelThermoSwitchX1Feedback: {},
	ModelThermoSwitchX2Feedback: {}, ModelThermoSwitchX4Feedback: {},
	ModelThermoSwitchX6Feedback: {}, ModelThermoVentilation: {},
}

// Known reports whether m is one of the declared device models.
func (m Model) Known() bool {
	_, ok := knownModels[m]
	return ok
}

// Common property keys.
const (
	PropStatus             = "Status"
	PropBrightness         = "Brightness"
	PropAction             = "Action"
	PropPosition           = "Position"
	PropMoving             = "Moving"
	PropFanSpeed           = "FanSpeed"
	PropBasicState         = "BasicState"
	PropAllOffActive       = "AllOffActive"
	PropAmbientTemperature = "AmbientTemperature"
	PropHumidity           = "Humidity"
	PropElectricalPower    = "ElectricalPower"
)

// Flag is the controller's textual boolean ("True"/"False").
type Flag bool

// MarshalJSON encodes the flag the way the controller does.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte(`"True"`), nil
	}
	return []byte(`"False"`), nil
}

// UnmarshalJSON accepts "True"/"False" in any case and plain JSON booleans.
func (f *Flag) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*f = false
	case bool:
		*f = Flag(v)
	case string:
		switch strings.ToLower(v) {
		case "true":
			*f = true
		case "false", "":
			*f = false
		default:
			return fmt.Errorf("%w: flag value %q", ErrInvalidProperty, v)
		}
	default:
		return fmt.Errorf("%w: flag value %s", ErrInvalidProperty, string(data))
	}
	return nil
}
