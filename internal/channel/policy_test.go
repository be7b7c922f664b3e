package channel

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestClassifyCloseCode(t *testing.T) {
	tests := []struct {
		code int
		want CloseCause
	}{
		{websocket.CloseNormalClosure, CauseNormal},
		{websocket.CloseGoingAway, CauseGoingAway},
		{websocket.CloseAbnormalClosure, CauseAbnormal},
		{websocket.ClosePolicyViolation, CausePolicyViolation},
		{websocket.CloseInternalServerErr, CauseInternalError},
		{websocket.CloseServiceRestart, CauseServiceRestart},
		{websocket.CloseMessageTooBig, CauseUnknown},
		{0, CauseUnknown},
	}

	for _, tt := range tests {
		if got := classifyCloseCode(tt.code); got != tt.want {
			t.Errorf("classifyCloseCode(%d): expected %s, got %s", tt.code, tt.want, got)
		}
	}
}

func TestPolicyBaseStandardCurve(t *testing.T) {
	p := NewReconnectPolicy(DefaultPolicyConfig(ProfileStandard))

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 1500 * time.Millisecond},
		{2, 2250 * time.Millisecond},
		{3, 3375 * time.Millisecond},
		{9, 30 * time.Second}, // 1.5^9 exceeds the cap
	}

	for _, tt := range tests {
		if got := p.Base(tt.attempt, CauseAbnormal); got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}

	// Extreme attempt counts saturate at the cap instead of overflowing.
	if got := p.Base(500, CauseAbnormal); got != 30*time.Second {
		t.Errorf("attempt 500: expected cap 30s, got %v", got)
	}
}

func TestPolicyBaseConstrainedCurve(t *testing.T) {
	p := NewReconnectPolicy(DefaultPolicyConfig(ProfileConstrained))

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 1250 * time.Millisecond},
		{4, 2000 * time.Millisecond},
		{8, 3000 * time.Millisecond},  // hits the cap exactly
		{20, 3000 * time.Millisecond}, // pinned at the cap
	}

	for _, tt := range tests {
		if got := p.Base(tt.attempt, CauseAbnormal); got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestPolicyBaseFixedCauseDelays(t *testing.T) {
	p := NewReconnectPolicy(DefaultPolicyConfig(ProfileStandard))

	tests := []struct {
		cause CloseCause
		want  time.Duration
	}{
		{CauseGoingAway, time.Second},
		{CauseServiceRestart, 1500 * time.Millisecond},
		{CausePolicyViolation, 3 * time.Second},
		{CauseInternalError, 3 * time.Second},
	}

	for _, tt := range tests {
		// Fixed-cause delays ignore the attempt count.
		for _, attempt := range []int{0, 3, 10} {
			if got := p.Base(attempt, tt.cause); got != tt.want {
				t.Errorf("%s attempt %d: expected %v, got %v", tt.cause, attempt, tt.want, got)
			}
		}
	}
}

func TestPolicyBaseMonotone(t *testing.T) {
	for _, profile := range []Profile{ProfileStandard, ProfileConstrained} {
		p := NewReconnectPolicy(DefaultPolicyConfig(profile))
		prev := time.Duration(0)
		for attempt := 0; attempt <= 25; attempt++ {
			d := p.Base(attempt, CauseAbnormal)
			if d < prev {
				t.Errorf("%s profile: delay decreased at attempt %d (%v -> %v)", profile, attempt, prev, d)
			}
			prev = d
		}
	}
}

func TestPolicyDelayJitterBounds(t *testing.T) {
	tests := []struct {
		profile Profile
		frac    float64
	}{
		{ProfileStandard, 0.10},
		{ProfileConstrained, 0.20},
	}

	for _, tt := range tests {
		p := NewReconnectPolicy(DefaultPolicyConfig(tt.profile))
		base := p.Base(2, CauseAbnormal)
		lo := time.Duration(float64(base) * (1 - tt.frac))
		hi := time.Duration(float64(base) * (1 + tt.frac))

		for i := 0; i < 200; i++ {
			d := p.Delay(2, CauseAbnormal)
			if d < lo || d > hi {
				t.Fatalf("%s profile: jittered delay %v outside [%v, %v]", tt.profile, d, lo, hi)
			}
		}
	}
}

func TestPolicyNegativeAttemptClamped(t *testing.T) {
	p := NewReconnectPolicy(DefaultPolicyConfig(ProfileStandard))
	if got := p.Base(-3, CauseAbnormal); got != time.Second {
		t.Errorf("expected negative attempt treated as 0, got %v", got)
	}
}
