package job

import (
	"encoding/json"
	"testing"
)

func TestStatusNames(t *testing.T) {
	tests := []struct {
		status Status
		name   string
	}{
		{Pending, "pending"},
		{Running, "running"},
		{Completed, "completed"},
		{Failed, "failed"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.name {
			t.Errorf("%v.String() = %q, want %q", tt.status, got, tt.name)
		}
		if got := ParseStatus(tt.name); got != tt.status {
			t.Errorf("ParseStatus(%q) = %v, want %v", tt.name, got, tt.status)
		}
	}
}

func TestParseStatusUnknown(t *testing.T) {
	if got := ParseStatus("exploded"); got != Pending {
		t.Errorf("unknown status should parse as pending, got %v", got)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	for _, s := range []Status{Pending, Running} {
		if s.IsTerminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
	for _, s := range []Status{Completed, Failed} {
		if !s.IsTerminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	data, err := json.Marshal(Running)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"running"` {
		t.Errorf("marshal = %s, want %q", data, `"running"`)
	}

	var s Status
	if err := json.Unmarshal([]byte(`"failed"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != Failed {
		t.Errorf("unmarshal = %v, want Failed", s)
	}
}
