package session

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDefault(t *testing.T) {
	s := Default()

	if s.Mode != ModeMulti {
		t.Errorf("expected mode multi, got %s", s.Mode)
	}
	if s.CaptionsLanguage != "en" {
		t.Errorf("expected captions language 'en', got %s", s.CaptionsLanguage)
	}
	if s.Role != RoleUndetermined {
		t.Errorf("expected undetermined role, got %q", s.Role)
	}
	if !s.CaptionsEnabled {
		t.Error("expected captions enabled by default")
	}
}

func TestReduce(t *testing.T) {
	base := Default()

	tests := []struct {
		name   string
		action Action
		check  func(State) bool
	}{
		{"set mode", SetMode{Mode: ModeSingle}, func(s State) bool { return s.Mode == ModeSingle }},
		{"disable captions", SetCaptionsEnabled{Enabled: false}, func(s State) bool { return !s.CaptionsEnabled }},
		{"toggle captions", ToggleCaptions{}, func(s State) bool { return !s.CaptionsEnabled }},
		{"captions language", SetCaptionsLanguage{Language: "fr"}, func(s State) bool { return s.CaptionsLanguage == "fr" }},
		{"input language", SetInputLanguage{Language: "de"}, func(s State) bool { return s.InputLanguage == "de" }},
		{"output language", SetOutputLanguage{Language: "it"}, func(s State) bool { return s.OutputLanguage == "it" }},
		{"current speaker", SetCurrentSpeaker{Speaker: SpeakerUser2}, func(s State) bool { return s.CurrentSpeaker == SpeakerUser2 }},
		{"role", SetRole{Role: RoleListener}, func(s State) bool { return s.Role == RoleListener }},
		{"swap", SwapLanguages{}, func(s State) bool {
			return s.InputLanguage == base.OutputLanguage && s.OutputLanguage == base.InputLanguage && s.CurrentSpeaker == SpeakerUser2
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := Reduce(base, tt.action)
			if !tt.check(next) {
				t.Errorf("unexpected state after %s: %+v", tt.action.Kind(), next)
			}
		})
	}

	if base != Default() {
		t.Error("expected Reduce to leave its input untouched")
	}
}

func TestReduce_UnknownActionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil action")
		}
	}()
	Reduce(Default(), nil)
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		kind    string
		payload string
		want    Action
		wantErr error
	}{
		{"set_mode", `{"mode":"single"}`, SetMode{Mode: ModeSingle}, nil},
		{"set_mode", `{"mode":"solo"}`, nil, ErrInvalidValue},
		{"set_captions_enabled", `{"enabled":false}`, SetCaptionsEnabled{Enabled: false}, nil},
		{"set_captions_enabled", `{}`, nil, ErrInvalidValue},
		{"toggle_captions", ``, ToggleCaptions{}, nil},
		{"set_captions_language", `{"language":"fr"}`, SetCaptionsLanguage{Language: "fr"}, nil},
		{"set_input_language", `{"language":""}`, nil, ErrInvalidValue},
		{"set_output_language", `{"language":"ja"}`, SetOutputLanguage{Language: "ja"}, nil},
		{"set_current_speaker", `{"speaker":"user2"}`, SetCurrentSpeaker{Speaker: SpeakerUser2}, nil},
		{"swap_languages", `null`, SwapLanguages{}, nil},
		{"set_role", `{"role":"host"}`, nil, ErrUnknownAction},
		{"launch_rockets", `{}`, nil, ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			got, err := ParseAction(tt.kind, json.RawMessage(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestParseAction_MalformedPayload(t *testing.T) {
	if _, err := ParseAction("set_mode", json.RawMessage(`{`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestAttributes(t *testing.T) {
	s := Reduce(Default(), SetMode{Mode: ModeSingle})
	attrs := s.Attributes()

	want := map[string]string{
		"captions_language": "en",
		"input_language":    "en",
		"output_language":   "es",
		"current_speaker":   "user1",
		"mode":              "single",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attribute %s: expected %s, got %s", k, v, attrs[k])
		}
	}
	if len(attrs) != len(want) {
		t.Errorf("expected %d attributes, got %d", len(want), len(attrs))
	}
}

func TestStore_DispatchNotifies(t *testing.T) {
	store := NewStore(Default())
	var changes []Change

	sub := store.Subscribe(func(c Change) { changes = append(changes, c) })
	defer sub.Unsubscribe()

	next := store.Dispatch(SetCaptionsLanguage{Language: "fr"})

	if next.CaptionsLanguage != "fr" || store.State().CaptionsLanguage != "fr" {
		t.Errorf("expected captions language 'fr', got %s", store.State().CaptionsLanguage)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Prev.CaptionsLanguage != "en" {
		t.Errorf("expected previous language 'en', got %s", changes[0].Prev.CaptionsLanguage)
	}
}
