package scheduling

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "08:00", want: NewTimeOfDay(8, 0)},
		{in: "21:59", want: NewTimeOfDay(21, 59)},
		{in: "10:15:00", want: NewTimeOfDay(10, 15)},
		{in: "24:00", wantErr: true},
		{in: "8am", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	start := NewTimeOfDay(9, 30)

	data, err := json.Marshal(start)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"09:30"` {
		t.Fatalf("marshal = %s, want %q", data, `"09:30"`)
	}

	var back TimeOfDay
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != start {
		t.Fatalf("round trip = %v, want %v", back, start)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != NewDate(2025, time.March, 10) {
		t.Fatalf("got %v", d)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("weekday = %v, want Monday", d.Weekday())
	}

	if _, err := ParseDate("10/03/2025"); err == nil {
		t.Fatal("expected error for non ISO date")
	}
}

func TestDateAt(t *testing.T) {
	d := NewDate(2025, time.March, 10)
	at := d.At(NewTimeOfDay(14, 45), time.UTC)
	want := time.Date(2025, time.March, 10, 14, 45, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("At = %v, want %v", at, want)
	}
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"pending", "confirmed", "cancelled", "completed"} {
		if _, err := ParseStatus(valid); err != nil {
			t.Errorf("ParseStatus(%q): unexpected error: %v", valid, err)
		}
	}

	for _, invalid := range []string{"", "done", "PENDING", "canceled"} {
		if _, err := ParseStatus(invalid); err == nil {
			t.Errorf("ParseStatus(%q): expected error", invalid)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusConfirmed.Terminal() {
		t.Fatal("pending and confirmed must not be terminal")
	}
	if !StatusCancelled.Terminal() || !StatusCompleted.Terminal() {
		t.Fatal("cancelled and completed must be terminal")
	}
}
