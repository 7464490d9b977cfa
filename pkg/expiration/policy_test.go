package expiration

import "testing"

func ptr(v int64) *int64 { return &v }

func TestShouldExpire_Disabled(t *testing.T) {
	p, err := New(false, ModeAge, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ShouldExpire(1_000_000, 0, 0) {
		t.Fatal("disabled policy must never expire a lease")
	}
}

func TestShouldExpire_AgeNoOverride(t *testing.T) {
	p, err := New(true, ModeAge, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ShouldExpire(1999, 1000, 2000) {
		t.Fatal("lease should not be expired before expiration_time")
	}
	if !p.ShouldExpire(2000, 1000, 2000) {
		t.Fatal("lease should be expired at expiration_time")
	}
}

// TestShouldExpire_AgeOverride mirrors spec scenario 3: override duration
// 100s, renewal_time=1000, expiration_time=2000.
func TestShouldExpire_AgeOverride(t *testing.T) {
	p, err := New(true, ModeAge, ptr(100), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ShouldExpire(1050, 1000, 2000) {
		t.Fatal("lease must remain at now=1050 (renewal+override=1100)")
	}
	if !p.ShouldExpire(1101, 1000, 2000) {
		t.Fatal("lease must expire at now=1101")
	}
}

// TestShouldExpire_CutoffDate mirrors spec scenario 4: cutoff_date=500.
func TestShouldExpire_CutoffDate(t *testing.T) {
	p, err := New(true, ModeCutoffDate, nil, ptr(500))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ShouldExpire(500, 499, 0) == false {
		t.Fatal("lease renewed at 499, before the cutoff, must be expired")
	}
	if p.ShouldExpire(499, 501, 0) {
		t.Fatal("lease renewed at 501, after the cutoff, must not be expired")
	}
}

func TestNew_RejectsBadCombinations(t *testing.T) {
	cases := []struct {
		name                  string
		mode                  Mode
		overrideLeaseDuration *int64
		cutoffDate            *int64
	}{
		{"cutoff_date in age mode", ModeAge, nil, ptr(10)},
		{"missing cutoff_date", ModeCutoffDate, nil, nil},
		{"override in cutoff mode", ModeCutoffDate, ptr(10), ptr(10)},
		{"unknown mode", Mode("bogus"), nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(true, tc.mode, tc.overrideLeaseDuration, tc.cutoffDate); err == nil {
				t.Fatal("expected construction error")
			}
		})
	}
}

func TestGetParameters(t *testing.T) {
	p, err := New(true, ModeAge, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params := p.GetParameters()
	if len(params.SubjectSharetypes) != 2 {
		t.Fatalf("expected both sharetypes subject to expiration, got %v", params.SubjectSharetypes)
	}

	disabled, err := New(false, ModeAge, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(disabled.GetParameters().SubjectSharetypes) != 0 {
		t.Fatal("disabled policy must report no sharetypes subject to expiration")
	}
}
