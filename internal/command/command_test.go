package command

import (
	"encoding/json"
	"testing"
)

func TestEncodeColorUpdate(t *testing.T) {
	env := EncodeColorUpdate(Color{R: 10, G: 20, B: 30})

	got, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"action":"set_color","payload":{"r":10,"g":20,"b":30}}`
	if string(got) != want {
		t.Errorf("EncodeColorUpdate = %s, want %s", got, want)
	}
}

func TestEncodeColorUpdate_PassesThroughOutOfRange(t *testing.T) {
	env := EncodeColorUpdate(Color{R: -1, G: 300, B: 0})
	c, ok := env.Payload.(Color)
	if !ok {
		t.Fatalf("payload type = %T, want Color", env.Payload)
	}
	if c.R != -1 || c.G != 300 {
		t.Errorf("payload = %+v, channels should be passed through unchanged", c)
	}
}

func TestEncodeModeChange(t *testing.T) {
	got, err := json.Marshal(EncodeModeChange(ModeFire))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"action":"set_mode","payload":{"mode":"fire"}}`
	if string(got) != want {
		t.Errorf("EncodeModeChange = %s, want %s", got, want)
	}
}

func TestEncodeNamedCommand(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		payload any
		want    string
	}{
		{"with_payload", "example_action", map[string]any{"foo": "bar"}, `{"action":"example_action","payload":{"foo":"bar"}}`},
		{"nil_payload", "ping", nil, `{"action":"ping","payload":null}`},
		{"unknown_mode_not_validated", ActionSetMode, map[string]any{"mode": "disco"}, `{"action":"set_mode","payload":{"mode":"disco"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(EncodeNamedCommand(tt.action, tt.payload))
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes() {
		got, err := ParseMode(string(m))
		if err != nil {
			t.Errorf("ParseMode(%q) error: %v", m, err)
		}
		if got != m {
			t.Errorf("ParseMode(%q) = %q", m, got)
		}
	}
	if _, err := ParseMode("disco"); err == nil {
		t.Error("ParseMode should reject unknown modes")
	}
	if _, err := ParseMode(""); err == nil {
		t.Error("ParseMode should reject empty string")
	}
}

func TestColor(t *testing.T) {
	c := Color{R: 255, G: 0, B: 16}
	if !c.Valid() {
		t.Error("color should be valid")
	}
	if c.Hex() != "#FF0010" {
		t.Errorf("Hex() = %q, want %q", c.Hex(), "#FF0010")
	}
	if c.String() != "rgb(255, 0, 16)" {
		t.Errorf("String() = %q", c.String())
	}
	if (Color{R: 256}).Valid() {
		t.Error("R=256 should be invalid")
	}
	if (Color{B: -1}).Valid() {
		t.Error("B=-1 should be invalid")
	}
}
