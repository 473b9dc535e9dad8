// Package ledger mints opaque ledger references for consent grant transitions.
// Each grant (including revoked→granted) receives a fresh receipt; revocation
// never mints one. The Generator interface keeps the contract small so a real
// distributed-ledger client can replace the stub without touching the consent
// state machine.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RefLength is the length of a ledger reference in hex characters.
const RefLength = 64

// Generator mints opaque ledger references.
// Implementations must be safe for concurrent use.
type Generator interface {
	// Next returns a new 64-hex-character reference. Called once per grant transition.
	Next(ctx context.Context) (string, error)
}

// StubGenerator produces random references locally. It stands in for a real
// distributed-ledger client; the reference acts as a pseudo-transaction receipt.
type StubGenerator struct{}

// NewStub creates a stub ledger reference generator.
func NewStub() *StubGenerator {
	return &StubGenerator{}
}

func (g *StubGenerator) Next(_ context.Context) (string, error) {
	buf := make([]byte, RefLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mint ledger ref: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
