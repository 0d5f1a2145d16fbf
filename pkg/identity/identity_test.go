package identity

import (
	"errors"
	"strings"
	"testing"
)

func twoIdentities() []Identity {
	return []Identity{
		{Name: "alice", Token: "xoxc-a", SessionToken: "xoxd-a"},
		{Name: "bob", Token: "xoxc-b", SessionToken: "xoxd-b"},
	}
}

func TestSelectRoundRobin(t *testing.T) {
	selector, err := NewSelector(twoIdentities(), RoundRobin)
	if err != nil {
		t.Fatalf("NewSelector error: %v", err)
	}

	want := []string{"alice", "bob", "alice", "bob"}
	for index, name := range want {
		got, err := selector.Select("", index)
		if err != nil {
			t.Fatalf("Select(%d) error: %v", index, err)
		}
		if got.Name != name {
			t.Fatalf("Select(%d) = %q, want %q", index, got.Name, name)
		}
	}
}

func TestSelectExplicitNameWins(t *testing.T) {
	for _, strategy := range []Strategy{RoundRobin, Random} {
		selector, err := NewSelector(twoIdentities(), strategy)
		if err != nil {
			t.Fatalf("NewSelector error: %v", err)
		}

		got, err := selector.Select("bob", 0)
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		if got.Name != "bob" {
			t.Fatalf("strategy %s: Select(bob) = %q", strategy, got.Name)
		}
	}
}

func TestSelectUnknownIdentity(t *testing.T) {
	selector, _ := NewSelector(twoIdentities(), RoundRobin)

	_, err := selector.Select("carol", 0)
	if !errors.Is(err, ErrUnknownIdentity) {
		t.Fatalf("err = %v, want ErrUnknownIdentity", err)
	}
	if !strings.Contains(err.Error(), "alice, bob") {
		t.Fatalf("error should list available identities: %v", err)
	}
}

func TestSelectNoIdentities(t *testing.T) {
	selector, err := NewSelector(nil, RoundRobin)
	if err != nil {
		t.Fatalf("NewSelector error: %v", err)
	}

	if _, err := selector.Select("", 0); !errors.Is(err, ErrNoIdentities) {
		t.Fatalf("err = %v, want ErrNoIdentities", err)
	}
	if _, err := selector.Select("alice", 0); !errors.Is(err, ErrNoIdentities) {
		t.Fatalf("explicit name on empty set: err = %v, want ErrNoIdentities", err)
	}
}

func TestSelectRandomUsesInjectedSource(t *testing.T) {
	selector, _ := NewSelector(twoIdentities(), Random)
	selector.intN = func(n int) int { return n - 1 }

	got, err := selector.Select("", 0)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if got.Name != "bob" {
		t.Fatalf("Select = %q, want bob", got.Name)
	}
}

func TestNewSelectorRejectsDuplicateNames(t *testing.T) {
	ids := append(twoIdentities(), Identity{Name: "alice"})
	if _, err := NewSelector(ids, RoundRobin); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input   string
		want    Strategy
		wantErr bool
	}{
		{input: "", want: RoundRobin},
		{input: "round_robin", want: RoundRobin},
		{input: " Random ", want: Random},
		{input: "weighted", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseStrategy(tt.input)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseStrategy(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseStrategy(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIdentityStringHidesCredentials(t *testing.T) {
	id := Identity{Name: "alice", Token: "xoxc-secret", SessionToken: "xoxd-secret"}
	if got := id.String(); got != "alice" {
		t.Fatalf("String() = %q", got)
	}
}
