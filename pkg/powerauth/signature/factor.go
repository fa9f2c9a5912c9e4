// Package signature implements the PowerAuth request signing engine: the
// multi factor HTTP request signatures, offline signatures and device key
// data signing.
package signature

import (
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/paerr"
)

// Factor is a set of authentication factors involved in a signature. The
// set is expressed as a bitmask, only the combinations that include the
// possession factor are valid.
type Factor int

const (
	FactorPossession Factor = 1
	FactorKnowledge  Factor = 2
	FactorBiometry   Factor = 4

	FactorPossessionKnowledge         = FactorPossession | FactorKnowledge
	FactorPossessionBiometry          = FactorPossession | FactorBiometry
	FactorPossessionKnowledgeBiometry = FactorPossession | FactorKnowledge | FactorBiometry
)

// Check validates that the factor set is one of the supported
// combinations. Every combination must include possession.
func (self Factor) Check() error {
	if 0 == self&FactorPossession {
		return paerr.New(paerr.WrongParam, "factor set without possession")
	}
	if 0 != self&^FactorPossessionKnowledgeBiometry {
		return paerr.New(paerr.WrongParam, "unknown factor bits in %d", int(self))
	}
	return nil
}

// HasKnowledge reports whether the knowledge factor is in the set.
func (self Factor) HasKnowledge() bool {
	return 0 != self&FactorKnowledge
}

// HasBiometry reports whether the biometry factor is in the set.
func (self Factor) HasBiometry() bool {
	return 0 != self&FactorBiometry
}

// Label returns the wire representation of the factor set, used in the
// pa_signature_type header field.
func (self Factor) Label() string {
	switch self {
	case FactorPossession:
		return "possession"
	case FactorPossessionKnowledge:
		return "possession_knowledge"
	case FactorPossessionBiometry:
		return "possession_biometry"
	case FactorPossessionKnowledgeBiometry:
		return "possession_knowledge_biometry"
	default:
		return ""
	}
}
