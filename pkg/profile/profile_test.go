package profile

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	p := Default("baseline")

	if p.Name != "baseline" {
		t.Errorf("Name = %q, want baseline", p.Name)
	}
	if p.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", p.Attempts)
	}
	if p.Backoff != 1.0 {
		t.Errorf("Backoff = %g, want 1.0", p.Backoff)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Default profile should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{
			name:    "valid retry profile",
			profile: Profile{Name: "flaky", Attempts: 3, Backoff: 2.0, LogLevel: "warn"},
			wantErr: false,
		},
		{
			name:    "missing name",
			profile: Profile{Attempts: 1, Backoff: 1.0},
			wantErr: true,
		},
		{
			name:    "zero attempts",
			profile: Profile{Name: "x", Attempts: 0, Backoff: 1.0},
			wantErr: true,
		},
		{
			name:    "backoff below one",
			profile: Profile{Name: "x", Attempts: 1, Backoff: 0.5},
			wantErr: true,
		},
		{
			name:    "bad log level",
			profile: Profile{Name: "x", Attempts: 1, Backoff: 1.0, LogLevel: "loud"},
			wantErr: true,
		},
		{
			name:    "empty log level allowed",
			profile: Profile{Name: "x", Attempts: 1, Backoff: 1.0},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFingerprintDistinguishesProfiles(t *testing.T) {
	a := Profile{Name: "a", Attempts: 3, Delay: Duration(time.Second), Backoff: 2.0}
	b := a
	b.Attempts = 4

	if a.Fingerprint() == b.Fingerprint() {
		t.Error("Different settings should produce different fingerprints")
	}
	if a.Fingerprint() != a.Fingerprint() {
		t.Error("Fingerprint should be deterministic")
	}
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Duration
	}{
		{"string duration", `delay: 250ms`, 250 * time.Millisecond},
		{"integer seconds", `delay: 2`, 2 * time.Second},
		{"fractional seconds", `delay: 0.5`, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles, err := Parse([]byte("name: x\nattempts: 1\n"+tt.text), ".yaml")
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got := profiles[0].Delay.Std(); got != tt.want {
				t.Errorf("Delay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	_, err := Parse([]byte("name: x\ndelay: notaduration"), ".yaml")
	if err == nil {
		t.Error("Expected an error for an unparseable duration")
	}
}
