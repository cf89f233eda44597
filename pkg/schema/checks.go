package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrContractViolation marks a record that failed its wire contract.
// Records carrying this error must never reach disk.
var ErrContractViolation = errors.New("schema: contract violation")

// ValidateFact checks a fact against facts.v0 plus the typed rules the
// schema cannot express: the digest must actually match the content.
func (v *Validator) ValidateFact(f *contracts.Fact) error {
	if f == nil {
		return fmt.Errorf("%w: nil fact", ErrContractViolation)
	}
	if err := v.validateAgainst(v.fact, f); err != nil {
		return fmt.Errorf("%w: fact %s: %v", ErrContractViolation, f.FactID, err)
	}
	if err := canonicalize.VerifyFactDigest(f); err != nil {
		return fmt.Errorf("%w: fact %s: %v", ErrContractViolation, f.FactID, err)
	}
	return nil
}

// ValidateFactValue checks an externally-ingested, already-decoded fact
// record against facts.v0 only. Digest parity is the caller's concern
// when the typed form is available.
func (v *Validator) ValidateFactValue(value any) error {
	if err := v.fact.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	return nil
}

// ValidateAssertionResult checks a verdict against assertion_result.v0
// plus the typed cross-field rules.
func (v *Validator) ValidateAssertionResult(r *contracts.AssertionResult) error {
	if r == nil {
		return fmt.Errorf("%w: nil assertion result", ErrContractViolation)
	}
	if err := v.validateAgainst(v.result, r); err != nil {
		return fmt.Errorf("%w: assertion %s: %v", ErrContractViolation, r.AssertionID, err)
	}
	if err := checkResultInvariants(r); err != nil {
		return fmt.Errorf("%w: assertion %s: %v", ErrContractViolation, r.AssertionID, err)
	}
	return nil
}

// ValidateAssertionResultValue checks an externally-ingested, decoded
// verdict record against assertion_result.v0 only.
func (v *Validator) ValidateAssertionResultValue(value any) error {
	if err := v.result.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	return nil
}

// validateAgainst round-trips the typed record through JSON so the
// compiled schema sees exactly the bytes that would be persisted.
func (v *Validator) validateAgainst(s *jsonschema.Schema, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	//nolint:wrapcheck // callers add record context
	return s.Validate(value)
}

// checkResultInvariants mirrors the schema conditionals in typed code,
// so a schema regression cannot silently widen the contract.
func checkResultInvariants(r *contracts.AssertionResult) error {
	if !r.Result.Valid() {
		return fmt.Errorf("unknown result %q", r.Result)
	}
	if r.Severity == "" && r.RiskWeightBucket == "" {
		return errors.New("severity or risk_weight_bucket required")
	}
	if r.Severity != "" && !r.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", r.Severity)
	}
	if r.RiskWeightBucket != "" && !r.RiskWeightBucket.Valid() {
		return fmt.Errorf("unknown risk_weight_bucket %q", r.RiskWeightBucket)
	}
	for _, ref := range r.EvidenceRefs {
		if ref == "" {
			return errors.New("empty evidence ref")
		}
	}
	switch r.Result {
	case contracts.ResultInconclusive:
		if r.InconclusiveReason == "" {
			return errors.New("INCONCLUSIVE without inconclusive_reason")
		}
	default:
		if r.InconclusiveReason != "" {
			return fmt.Errorf("%s carries inconclusive_reason %q", r.Result, r.InconclusiveReason)
		}
	}
	if r.Result == contracts.ResultFail && !contracts.AnyLineRef(r.EvidenceRefs) {
		return errors.New("FAIL without line-addressable evidence ref")
	}
	return nil
}
