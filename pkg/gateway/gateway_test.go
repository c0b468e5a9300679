package gateway

import "testing"

func TestCompileGlob(t *testing.T) {
	re, err := compileGlob("gpt-4*")
	if err != nil {
		t.Fatalf("compileGlob: %v", err)
	}
	if !re.MatchString("gpt-4-turbo") {
		t.Errorf("expected gpt-4-turbo to match gpt-4*")
	}
	if re.MatchString("gpt-3.5") {
		t.Errorf("did not expect gpt-3.5 to match gpt-4*")
	}
}

func TestRuleSetResolve(t *testing.T) {
	rs, err := NewRuleSet([]RawRule{
		{Provider: "openai", Pattern: "gpt-4*", Multiplier: 2.0},
		{Provider: "openai", Pattern: "*", Multiplier: 1.5},
	}, 1.4)
	if err != nil {
		t.Fatalf("NewRuleSet: %v", err)
	}

	if got := rs.Resolve("openai", "gpt-4-turbo"); got != 2.0 {
		t.Errorf("Resolve(openai, gpt-4-turbo) = %v, want 2.0", got)
	}
	if got := rs.Resolve("openai", "gpt-3.5"); got != 1.5 {
		t.Errorf("Resolve(openai, gpt-3.5) = %v, want 1.5", got)
	}
	if got := rs.Resolve("anthropic", "claude-3"); got != 1.4 {
		t.Errorf("Resolve(anthropic, claude-3) = %v, want default 1.4", got)
	}
}

func TestNewRuleSetRejectsOutOfRangeMultiplier(t *testing.T) {
	cases := []float64{0.5, 3.5, -1}
	for _, m := range cases {
		if _, err := NewRuleSet([]RawRule{{Provider: "p", Pattern: "*", Multiplier: m}}, 1.4); err == nil {
			t.Errorf("expected NewRuleSet to reject multiplier %v", m)
		}
	}
}

func TestNewRuleSetRejectsOutOfRangeDefault(t *testing.T) {
	if _, err := NewRuleSet(nil, 5.0); err == nil {
		t.Errorf("expected NewRuleSet to reject default margin 5.0")
	}
}

func TestPreCheckDecisionMatrix(t *testing.T) {
	const grace = int64(50)
	cases := []struct {
		balance, estimated int64
		want                Decision
	}{
		{balance: 5, estimated: 0, want: DecisionAllowed},
		{balance: -50, estimated: 0, want: DecisionCreditsExhausted},
		{balance: 0, estimated: 10, want: DecisionInsufficientCredits},
		{balance: -10, estimated: 10, want: DecisionGrace},
		{balance: 100, estimated: 50, want: DecisionAllowed},
	}
	for _, tc := range cases {
		got := decide(tc.balance, tc.estimated, grace)
		if got != tc.want {
			t.Errorf("decide(%d, %d, %d) = %v, want %v", tc.balance, tc.estimated, grace, got, tc.want)
		}
	}
}
