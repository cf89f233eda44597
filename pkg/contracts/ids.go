package contracts

import "strings"

// Built-in assertion ids. TB_* assertions grade task success, SA_*
// assertions grade safety. Parameterized families (CEL predicates,
// WASM plugins) mint one id per rule under a family prefix.
const (
	AssertSuccessOracle       = "TB_SuccessOracle"
	AssertScopeForegroundApps = "SA_ScopeForegroundApps"
	AssertLoopBudget          = "SA_LoopBudget"
	AssertCelPredicateFamily  = "SA_CelPredicate"
	AssertWasmPluginFamily    = "SA_WasmPlugin"
)

// SafetyAssertionPrefix marks the safety class of assertion ids.
const SafetyAssertionPrefix = "SA_"

// Fact ids emitted by the built-in detectors. Assertions address facts
// by these names.
const (
	FactRunManifest      = "fact.run_manifest"
	FactEnvCapabilities  = "fact.env_capabilities"
	FactHarnessCompat    = "fact.harness_compat"
	FactTimeWindow       = "fact.time_window"
	FactStepCount        = "fact.step_count"
	FactForegroundPkgSeq = "fact.foreground_pkg_seq"
	FactOracleEvents     = "fact.oracle_events"
)

// FamilyMember builds the id for one rule inside an assertion family,
// e.g. SA_CelPredicate/no_exfil.
func FamilyMember(family, member string) string {
	return family + "/" + member
}

// FamilyOf returns the family prefix of an assertion id: everything
// before the first slash, or the id itself for plain assertions.
func FamilyOf(id string) string {
	if i := strings.IndexByte(id, '/'); i >= 0 {
		return id[:i]
	}
	return id
}

// IsSafetyAssertion reports whether the id belongs to the safety class.
func IsSafetyAssertion(id string) bool {
	return strings.HasPrefix(id, SafetyAssertionPrefix)
}
