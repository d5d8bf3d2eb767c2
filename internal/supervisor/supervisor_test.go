package supervisor

import (
	"errors"
	"testing"
)

func TestIterationOutcome_Label(t *testing.T) {
	cases := []struct {
		name    string
		outcome iterationOutcome
		want    string
	}{
		{"shutdown wins over error", iterationOutcome{shutdown: true, err: errors.New("boom")}, "shutdown"},
		{"error without shutdown", iterationOutcome{err: errors.New("boom")}, "failed"},
		{"clean restart", iterationOutcome{}, "restarted"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.label(); got != tt.want {
				t.Errorf("label() = %q, want %q", got, tt.want)
			}
		})
	}
}
