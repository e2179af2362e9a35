package layout

import "testing"

func TestNewObserver_InitialFlag(t *testing.T) {
	tests := []struct {
		name  string
		width int
		want  bool
	}{
		{"narrow", 600, true},
		{"at_threshold", 900, true},
		{"wide", 901, false},
		{"unknown_width", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewObserver(DefaultCompactWidth, tt.width, 700)
			if got := o.Compact(); got != tt.want {
				t.Errorf("Compact() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObserver_NotifiesOnlyOnCrossing(t *testing.T) {
	o := NewObserver(900, 1200, 800)

	var got []bool
	o.Listen(func(compact bool) { got = append(got, compact) })

	o.Resize(1100, 800) // still wide
	o.Resize(800, 800)  // crosses down
	o.Resize(700, 800)  // still compact
	o.Resize(901, 800)  // crosses up

	want := []bool{true, false}
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, got[i], want[i])
		}
	}
	if w, h := o.Size(); w != 901 || h != 800 {
		t.Errorf("Size() = %d,%d", w, h)
	}
}

func TestObserver_Deregister(t *testing.T) {
	o := NewObserver(0, 1000, 0)

	calls := 0
	stop := o.Listen(func(bool) { calls++ })
	o.Resize(500, 0)
	stop()
	stop() // second call is harmless
	o.Resize(1000, 0)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestObserver_Close(t *testing.T) {
	o := NewObserver(900, 1000, 0)
	o.Listen(func(bool) { t.Error("listener should be removed by Close") })
	o.Close()
	o.Resize(100, 0)
	if !o.Compact() {
		t.Error("flag should still update after Close")
	}
}
