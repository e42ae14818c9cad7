// Package rules implements the §4.10 rule engine: CEL-compiled boolean
// expressions evaluated against a fixed EvaluationContext, fired in
// priority-desc/created-at-asc order, aggregated into a final action.
package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"

	"github.com/orbicheck/orbicheck/internal/reason"
)

// Action is the action a firing rule or the final aggregation produces.
type Action string

const (
	ActionApprove Action = "approve"
	ActionHold    Action = "hold"
	ActionBlock   Action = "block"
	ActionReview  Action = "review"
)

// perRuleTimeout bounds a single rule's evaluation (§4.10: "≤ 50ms per
// rule; exceed = skip + warn").
const perRuleTimeout = 50 * time.Millisecond

// Rule is one stored rule definition.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Action      Action    `json:"action"`
	Priority    int       `json:"priority"`
	Enabled     bool      `json:"enabled"`
	Expression  string    `json:"expression"`
	CreatedAt   time.Time `json:"created_at"`
}

// EvaluationContext is the fixed set of variables every rule expression
// may reference (§4.10).
type EvaluationContext struct {
	Email                 string         `json:"email"`
	Phone                 string         `json:"phone"`
	Address               map[string]any `json:"address"`
	Name                  string         `json:"name"`
	IP                    string         `json:"ip"`
	Device                string         `json:"device"`
	RiskScore             int            `json:"risk_score"`
	RiskLevel             string         `json:"risk_level"`
	Metadata              map[string]any `json:"metadata"`
	TransactionAmount     float64        `json:"transaction_amount"`
	Currency              string         `json:"currency"`
	SessionID             string         `json:"session_id"`
	CustomerDedupeMatches int            `json:"customer_dedupe_matches"`
	AddressDedupeMatches  int            `json:"address_dedupe_matches"`
}

func (c EvaluationContext) toActivation() map[string]any {
	return map[string]any{
		"email":                   c.Email,
		"phone":                   c.Phone,
		"address":                 orEmptyMap(c.Address),
		"name":                    c.Name,
		"ip":                      c.IP,
		"device":                  c.Device,
		"risk_score":              int64(c.RiskScore),
		"risk_level":              c.RiskLevel,
		"metadata":                orEmptyMap(c.Metadata),
		"transaction_amount":      c.TransactionAmount,
		"currency":                c.Currency,
		"session_id":              c.SessionID,
		"customer_dedupe_matches": int64(c.CustomerDedupeMatches),
		"address_dedupe_matches":  int64(c.AddressDedupeMatches),
	}
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// IssueSeverity mirrors the teacher's compile-diagnostic severities,
// re-expressed here for rule compilation instead of a general-purpose
// document compiler.
type IssueSeverity string

const (
	SevWarn  IssueSeverity = "warn"
	SevError IssueSeverity = "error"
)

// Issue is one compile-time or evaluation-time diagnostic against a rule.
type Issue struct {
	Severity IssueSeverity `json:"severity"`
	RuleID   string        `json:"rule_id"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
}

// CompileReport summarizes compiling a rule set.
type CompileReport struct {
	GeneratedAt time.Time `json:"generated_at"`
	Errors      int       `json:"errors"`
	Warnings    int       `json:"warnings"`
	Issues      []Issue   `json:"issues"`
}

func (r CompileReport) HasErrors() bool { return r.Errors > 0 }

// Engine holds a compiled, ready-to-evaluate rule set.
type Engine struct {
	env      *cel.Env
	compiled map[string]cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("email", cel.StringType),
		cel.Variable("phone", cel.StringType),
		cel.Variable("address", cel.DynType),
		cel.Variable("name", cel.StringType),
		cel.Variable("ip", cel.StringType),
		cel.Variable("device", cel.StringType),
		cel.Variable("risk_score", cel.IntType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("metadata", cel.DynType),
		cel.Variable("transaction_amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("customer_dedupe_matches", cel.IntType),
		cel.Variable("address_dedupe_matches", cel.IntType),
	)
}

// Compile compiles every enabled rule's expression, producing a report of
// any rule that failed to parse/check/type-check as a boolean expression.
// Rules with issues are dropped from the returned Engine's evaluable set
// but remain visible in the report.
func Compile(ruleSet []Rule) (*Engine, CompileReport) {
	env, err := newEnv()
	report := CompileReport{GeneratedAt: time.Now().UTC()}
	if err != nil {
		report.addIssue(Issue{Severity: SevError, Code: "engine.env_build_failed", Message: err.Error()})
		return &Engine{compiled: map[string]cel.Program{}}, finalize(report)
	}

	compiled := make(map[string]cel.Program, len(ruleSet))
	for _, r := range ruleSet {
		if !r.Enabled {
			continue
		}
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			report.addIssue(Issue{Severity: SevError, RuleID: r.ID, Code: "rule.compile_failed", Message: issues.Err().Error()})
			continue
		}
		if ast.OutputType() != cel.BoolType {
			report.addIssue(Issue{Severity: SevError, RuleID: r.ID, Code: "rule.not_boolean", Message: fmt.Sprintf("expression evaluates to %s, not bool", ast.OutputType())})
			continue
		}
		prg, err := env.Program(ast)
		if err != nil {
			report.addIssue(Issue{Severity: SevError, RuleID: r.ID, Code: "rule.program_build_failed", Message: err.Error()})
			continue
		}
		compiled[r.ID] = prg
	}

	return &Engine{env: env, compiled: compiled}, finalize(report)
}

func (r *CompileReport) addIssue(i Issue) {
	r.Issues = append(r.Issues, i)
}

func finalize(r CompileReport) CompileReport {
	for _, i := range r.Issues {
		switch i.Severity {
		case SevError:
			r.Errors++
		case SevWarn:
			r.Warnings++
		}
	}
	return r
}

// Decision is the §4.10 aggregation result.
type Decision struct {
	FinalAction Action        `json:"final_action"`
	Fired       []FiredRule   `json:"fired_rules"`
	Skipped     []Issue       `json:"skipped_rules,omitempty"`
	ReasonCodes []reason.Code `json:"reason_codes"`
}

// FiredRule records one rule that matched during evaluation.
type FiredRule struct {
	RuleID string `json:"rule_id"`
	Action Action `json:"action"`
}

// Evaluate runs every compiled rule from ruleSet against evalCtx in
// priority-desc, created-at-asc order and aggregates a final action per
// §4.10's precedence: approve overrides all, else block, else hold/review
// by score, else pure score thresholds.
func (e *Engine) Evaluate(ctx context.Context, ruleSet []Rule, evalCtx EvaluationContext) Decision {
	ordered := make([]Rule, len(ruleSet))
	copy(ordered, ruleSet)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	activation := evalCtx.toActivation()

	var fired []FiredRule
	var skipped []Issue
	for _, r := range ordered {
		if !r.Enabled {
			continue
		}
		prg, ok := e.compiled[r.ID]
		if !ok {
			continue
		}

		ruleCtx, cancel := context.WithTimeout(ctx, perRuleTimeout)
		matched, timedOut := evalOne(ruleCtx, prg, activation)
		cancel()

		if timedOut {
			skipped = append(skipped, Issue{Severity: SevWarn, RuleID: r.ID, Code: "rule.timeout", Message: "rule exceeded its evaluation deadline and was skipped"})
			continue
		}
		if matched {
			fired = append(fired, FiredRule{RuleID: r.ID, Action: r.Action})
		}
	}

	return Decision{
		FinalAction: aggregate(fired, evalCtx.RiskScore, evalCtx.RiskLevel),
		Fired:       fired,
		Skipped:     skipped,
	}
}

// evalOne runs prg with a background goroutine so a pathological
// expression (e.g. an unbounded comprehension) cannot block past the
// per-rule deadline; timedOut=true means the caller should skip + warn.
func evalOne(ctx context.Context, prg cel.Program, activation map[string]any) (matched bool, timedOut bool) {
	type result struct {
		val ref.Val
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, _, err := prg.Eval(activation)
		done <- result{val, err}
	}()

	select {
	case <-ctx.Done():
		return false, true
	case r := <-done:
		if r.err != nil {
			return false, false
		}
		b, ok := r.val.Value().(bool)
		return ok && b, false
	}
}

func aggregate(fired []FiredRule, riskScore int, riskLevel string) Action {
	var anyApprove, anyBlock, anyHold bool
	for _, f := range fired {
		switch f.Action {
		case ActionApprove:
			anyApprove = true
		case ActionBlock:
			anyBlock = true
		case ActionHold:
			anyHold = true
		}
	}

	switch {
	case anyApprove:
		return ActionApprove
	case anyBlock:
		return ActionBlock
	case anyHold:
		if riskScore >= 80 || riskLevel == "critical" {
			return ActionReview
		}
		return ActionHold
	default:
		switch {
		case riskScore >= 80:
			return ActionBlock
		case riskScore >= 60:
			return ActionReview
		case riskScore >= 35:
			return ActionHold
		default:
			return ActionApprove
		}
	}
}
