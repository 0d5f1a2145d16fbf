package identity

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// Strategy decides which identity authors a post when none is named.
type Strategy string

const (
	RoundRobin Strategy = "round_robin"
	Random     Strategy = "random"
)

var (
	ErrNoIdentities    = errors.New("no identities configured")
	ErrUnknownIdentity = errors.New("unknown identity")
)

// Identity is one named set of session credentials used to author posts.
type Identity struct {
	Name string
	// Token is the request-body API token.
	Token string
	// SessionToken is sent as the "d" session cookie.
	SessionToken string
	// Cookies holds extra cookies in "k=v; k2=v2" header form.
	Cookies string
}

// String never includes credentials.
func (i Identity) String() string {
	return i.Name
}

// ParseStrategy maps a config value onto a Strategy. Empty means round robin.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case "", RoundRobin:
		return RoundRobin, nil
	case Random:
		return Random, nil
	default:
		return "", fmt.Errorf("unsupported strategy %q", value)
	}
}

// Selector picks an identity per post. It holds no counters; callers pass
// the sequence index.
type Selector struct {
	identities []Identity
	strategy   Strategy
	intN       func(n int) int
}

// NewSelector validates names and builds a selector over identities in order.
func NewSelector(identities []Identity, strategy Strategy) (*Selector, error) {
	seen := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		name := strings.TrimSpace(id.Name)
		if name == "" {
			return nil, errors.New("identity name cannot be empty")
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("duplicate identity name %q", name)
		}
		seen[name] = struct{}{}
	}

	if strategy == "" {
		strategy = RoundRobin
	}

	return &Selector{
		identities: append([]Identity(nil), identities...),
		strategy:   strategy,
		intN:       rand.IntN,
	}, nil
}

// Select returns the explicitly named identity, or one chosen by strategy.
func (s *Selector) Select(name string, index int) (Identity, error) {
	if len(s.identities) == 0 {
		return Identity{}, ErrNoIdentities
	}

	if name != "" {
		for _, id := range s.identities {
			if id.Name == name {
				return id, nil
			}
		}
		return Identity{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownIdentity, name, strings.Join(s.Names(), ", "))
	}

	if s.strategy == Random {
		return s.identities[s.intN(len(s.identities))], nil
	}

	if index < 0 {
		index = -index
	}
	return s.identities[index%len(s.identities)], nil
}

// Names lists identity names in configured order.
func (s *Selector) Names() []string {
	names := make([]string, 0, len(s.identities))
	for _, id := range s.identities {
		names = append(names, id.Name)
	}
	return names
}

// Len reports how many identities are configured.
func (s *Selector) Len() int {
	return len(s.identities)
}

// Strategy returns the active selection strategy.
func (s *Selector) Strategy() Strategy {
	return s.strategy
}
