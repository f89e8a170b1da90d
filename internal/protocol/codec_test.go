package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/nerrad567/nhc-bridge/internal/device"
)

// =============================================================================
// Encode Tests
// =============================================================================

func TestEncodeListRequest(t *testing.T) {
	got := string(EncodeListRequest())
	want := `{"Method":"devices.list"}`
	if got != want {
		t.Errorf("EncodeListRequest() = %s, want %s", got, want)
	}
}

func TestEncodeControl(t *testing.T) {
	data, err := EncodeControl([]device.Update{
		{UUID: "a", Properties: device.Properties{device.P("Status", "On")}},
		{UUID: "b", Properties: device.Properties{device.P("Brightness", "40"), device.P("Status", "On")}},
	})
	if err != nil {
		t.Fatalf("EncodeControl() error = %v", err)
	}

	want := `{"Method":"devices.control","Params":[{"Devices":[` +
		`{"Uuid":"a","Properties":[{"Status":"On"}]},` +
		`{"Uuid":"b","Properties":[{"Brightness":"40"},{"Status":"On"}]}]}]}`
	if string(data) != want {
		t.Errorf("EncodeControl() =\n%s\nwant\n%s", data, want)
	}
}

func TestEncodeControlEmpty(t *testing.T) {
	if _, err := EncodeControl(nil); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("EncodeControl(nil) error = %v, want ErrEmptyCommand", err)
	}
}

// =============================================================================
// Decode Tests
// =============================================================================

func TestDecodeListResponse(t *testing.T) {
	payload := `{"Method":"devices.list","Params":[{"Devices":[
		{"Uuid":"a","Name":"Hall","Type":"relay","Model":"light","Online":"True","Properties":[{"Status":"Off"}]},
		{"Uuid":"b","Name":"Blind","Type":"motor","Model":"rolldownshutter","Online":"False","Properties":[{"Position":"20"},{"Moving":"False"}]}
	]}]}`

	in, err := Decode(TopicResponse, []byte(payload))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if in.Kind != KindListResponse {
		t.Fatalf("Kind = %v, want %v", in.Kind, KindListResponse)
	}
	if len(in.Devices) != 2 {
		t.Fatalf("Devices = %d, want 2", len(in.Devices))
	}
	if in.Devices[1].Model != device.ModelRollDownShutter || bool(in.Devices[1].Online) {
		t.Errorf("Devices[1] = %+v", in.Devices[1])
	}
	if v, _ := in.Devices[0].Property("Status"); v != "Off" {
		t.Errorf("Devices[0] Status = %q, want Off", v)
	}
}

func TestDecodeListResponseWithoutDevices(t *testing.T) {
	in, err := Decode(TopicResponse, []byte(`{"Method":"devices.list"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if in.Kind != KindListResponse || in.Devices == nil || len(in.Devices) != 0 {
		t.Errorf("Decode() = %+v, want empty list response", in)
	}
}

func TestDecodeStatusEvent(t *testing.T) {
	payload := `{"Method":"devices.status","Params":[{"Devices":[
		{"Uuid":"a","Properties":[{"Status":"On"}]},
		{"Uuid":"b","Properties":[{"Brightness":"50"}]}
	]}]}`

	in, err := Decode(TopicEvent, []byte(payload))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := []device.Update{
		{UUID: "a", Properties: device.Properties{device.P("Status", "On")}},
		{UUID: "b", Properties: device.Properties{device.P("Brightness", "50")}},
	}
	if in.Kind != KindStatusEvent || !reflect.DeepEqual(in.Updates, want) {
		t.Errorf("Decode() = %+v, want updates %+v", in, want)
	}
}

func TestDecodeUnknown(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"list on event topic", TopicEvent, `{"Method":"devices.list","Params":[{"Devices":[]}]}`},
		{"status on response topic", TopicResponse, `{"Method":"devices.status","Params":[]}`},
		{"control reply", TopicResponse, `{"Method":"devices.control","Params":[{"Devices":[]}]}`},
		{"other method", TopicEvent, `{"Method":"devices.added"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode(tt.topic, []byte(tt.payload))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if in.Kind != KindUnknown {
				t.Errorf("Kind = %v, want unknown", in.Kind)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"not json", TopicEvent, `not json`},
		{"truncated", TopicResponse, `{"Method":"devices.list","Params":[{"Devices":[`},
		{"devices not array", TopicResponse, `{"Method":"devices.list","Params":[{"Devices":{}}]}`},
		{"properties not array", TopicEvent, `{"Method":"devices.status","Params":[{"Devices":[{"Uuid":"a","Properties":"On"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.topic, []byte(tt.payload))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Decode() error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestControlRoundTripThroughDecoder(t *testing.T) {
	updates := []device.Update{{UUID: "x", Properties: device.Properties{device.P("Action", "Open")}}}
	data, err := EncodeControl(updates)
	if err != nil {
		t.Fatalf("EncodeControl() error = %v", err)
	}

	// A controller echoing the command as a status push must decode back.
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	env["Method"] = json.RawMessage(`"devices.status"`)
	echoed, _ := json.Marshal(env)

	in, err := Decode(TopicEvent, echoed)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(in.Updates, updates) {
		t.Errorf("Updates = %+v, want %+v", in.Updates, updates)
	}
}

func TestChannel(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{TopicCommand, "cmd"},
		{TopicEvent, "evt"},
		{TopicResponse, "rsp"},
		{"hobby/other", "other:hobby/other"},
	}
	for _, tt := range tests {
		if got := Channel(tt.topic); got != tt.want {
			t.Errorf("Channel(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
	if got := (Topics{}).Subscriptions(); !reflect.DeepEqual(got, []string{TopicEvent, TopicResponse}) {
		t.Errorf("Subscriptions() = %v", got)
	}
}
