package core

import "lineagecore/pkg/domain"

// defaultRules returns the built-in policy set every deployment runs. The
// names must stay aligned with the invariants declared in
// docs/schema/lineage-model.json.
func defaultRules() []domain.Rule {
	return []domain.Rule{
		LineageIntegrityRule(),
		FrameContinuityRule(),
	}
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	for _, rule := range defaultRules() {
		engine.Register(rule)
	}
	return engine
}
