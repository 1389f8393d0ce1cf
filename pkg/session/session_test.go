package session

import (
	"encoding/json"
	"testing"
)

func TestDerive(t *testing.T) {
	ready := Inputs{Armed: true, CameraReady: true}

	tests := []struct {
		name string
		in   Inputs
		want Status
	}{
		{"not armed", Inputs{}, Status{State: Inactive}},
		{"not armed overrides processing", Inputs{CameraReady: true, Processing: true, Speaking: true}, Status{State: Inactive}},
		{"camera not ready", Inputs{Armed: true}, Status{State: PreparingCamera}},
		{"camera not ready while recognizing", Inputs{Armed: true, Recognizing: true, Transcript: "hi"}, Status{State: PreparingCamera}},
		{"idle armed", ready, Status{State: Recording}},
		{"listening", Inputs{Armed: true, CameraReady: true, Recognizing: true}, Status{State: Listening}},
		{"whitespace transcript", Inputs{Armed: true, CameraReady: true, Recognizing: true, Transcript: "  "}, Status{State: Listening}},
		{"preview", Inputs{Armed: true, CameraReady: true, Recognizing: true, Transcript: " what is this"}, Status{State: TranscriptPreview, Transcript: "what is this"}},
		{"processing regardless of recognition", Inputs{Armed: true, CameraReady: true, Recognizing: true, Processing: true, Transcript: "x"}, Status{State: Processing}},
		{"processing beats speaking", Inputs{Armed: true, CameraReady: true, Processing: true, Speaking: true}, Status{State: Processing}},
		{"responding", Inputs{Armed: true, CameraReady: true, Speaking: true}, Status{State: Responding}},
		{"responding while recognizing", Inputs{Armed: true, CameraReady: true, Speaking: true, Recognizing: true}, Status{State: Responding}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Derive(tt.in); got != tt.want {
				t.Errorf("Derive(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

// Every combination of the six inputs maps to exactly one state, and the
// mapping does not depend on call order.
func TestDeriveIsDeterministic(t *testing.T) {
	for mask := 0; mask < 64; mask++ {
		in := Inputs{
			Armed:       mask&1 != 0,
			CameraReady: mask&2 != 0,
			Recognizing: mask&4 != 0,
			Processing:  mask&8 != 0,
			Speaking:    mask&16 != 0,
		}
		if mask&32 != 0 {
			in.Transcript = "hello"
		}
		first := Derive(in)
		if second := Derive(in); first != second {
			t.Fatalf("mask %d: %v then %v", mask, first, second)
		}
		if first.State.String() == "unknown" {
			t.Fatalf("mask %d produced unknown state", mask)
		}
	}
}

func TestScenarioWalkthrough(t *testing.T) {
	steps := []struct {
		in   Inputs
		want State
	}{
		{Inputs{}, Inactive},
		{Inputs{Armed: true}, PreparingCamera},
		{Inputs{Armed: true, CameraReady: true}, Recording},
		{Inputs{Armed: true, CameraReady: true, Recognizing: true}, Listening},
		{Inputs{Armed: true, CameraReady: true, Recognizing: true, Transcript: "what is this"}, TranscriptPreview},
		{Inputs{Armed: true, CameraReady: true, Processing: true, Transcript: "what is this"}, Processing},
		{Inputs{Armed: true, CameraReady: true, Speaking: true}, Responding},
		{Inputs{Armed: true, CameraReady: true}, Recording},
		{Inputs{CameraReady: true, Processing: true}, Inactive},
	}

	for i, s := range steps {
		if got := Derive(s.in).State; got != s.want {
			t.Errorf("step %d: got %v, want %v", i, got, s.want)
		}
	}
}

func TestTrackerEmitsOnlyOnChange(t *testing.T) {
	tr := NewTracker()

	var transitions []State
	tr.OnChange(func(prev, next Status) {
		transitions = append(transitions, next.State)
	})

	in := Inputs{Armed: true, CameraReady: true}
	if _, changed := tr.Update(in); !changed {
		t.Error("first update should emit")
	}
	if _, changed := tr.Update(in); changed {
		t.Error("identical update should not emit")
	}

	in.Recognizing = true
	tr.Update(in)
	tr.Update(in)

	in.Transcript = "hi"
	tr.Update(in)
	in.Transcript = "hi there"
	tr.Update(in)

	want := []State{Recording, Listening, TranscriptPreview, TranscriptPreview}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker()
	tr.Update(Inputs{})

	tr.Reset()
	if _, changed := tr.Update(Inputs{}); !changed {
		t.Error("update after Reset should emit")
	}
}

func TestStatusJSON(t *testing.T) {
	data, err := json.Marshal(Status{State: TranscriptPreview, Transcript: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"state":"transcript_preview","transcript":"hi"}` {
		t.Errorf("got %s", data)
	}
}
