// Package adapter provides the domain-adapter variants the core talks to.
// Every domain collaborator (inventory, pricing, CRM, logistics) is
// reached through the four-method contract.DomainAdapter; which variant
// backs it is decided at construction time from configuration, never by
// runtime type inspection.
package adapter

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

const (
	ModeMock = "mock"
	ModeLive = "live"
)

// Config selects and configures an adapter variant.
type Config struct {
	Mode    string        `envconfig:"MODE" split_words:"true" default:"mock"`
	URL     string        `envconfig:"URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// New builds the adapter variant named by cfg.Mode.
func New(cfg Config) (contractx.DomainAdapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModeMock:
		return NewMock(), nil
	case ModeLive:
		return NewLive(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown adapter mode %q", contractx.ErrValidation, cfg.Mode)
	}
}
