// Package decision turns untrusted model output into policy-compliant budget
// decisions and asks the model for them.
package decision

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

const (
	maxListEntries = 10
	maxNotesRunes  = 500
)

// budgetActions is the only policy in force: decisions may move budgets or
// leave them alone, nothing else.
var budgetActions = []model.Action{
	model.ActionIncreaseBudget,
	model.ActionDecreaseBudget,
	model.ActionNoChange,
}

// Fallback returns the safe no-op decision tagged with flags.
func Fallback(flags []string, reasoning ...string) model.DecisionOutput {
	if len(reasoning) == 0 {
		reasoning = []string{"Fallback safe mode"}
	}
	return model.DecisionOutput{
		Decision:         model.ActionNoChange,
		ChangePct:        0,
		Confidence:       0,
		RequiresApproval: true,
		Reasoning:        reasoning,
		RiskFlags:        flags,
		Notes:            "",
	}
}

// Validate converts a raw model decision into a DecisionOutput. Anything
// malformed or outside policy degrades to Fallback; it never errors.
func Validate(candidate []byte, allowedActions []string, maxChangePct float64) model.DecisionOutput {
	invalid := Fallback([]string{model.FlagInvalidAIOutput})

	if !gjson.ValidBytes(candidate) {
		return invalid
	}
	out := gjson.ParseBytes(candidate)
	if !out.IsObject() {
		return invalid
	}

	dec := out.Get("decision")
	if dec.Type != gjson.String || !slices.Contains(allowedActions, dec.Str) {
		return invalid
	}
	decision := model.Action(dec.Str)

	change, ok := toNumber(out.Get("change_pct"))
	if !ok {
		return invalid
	}

	if !slices.Contains(budgetActions, decision) {
		return Fallback([]string{model.FlagBudgetOnly}, "Budget-only policy: bid/pause not permitted")
	}

	if decision == model.ActionNoChange {
		change = 0
	}
	change = math.Max(0, math.Min(math.Abs(change), maxChangePct))

	confidence, ok := toNumber(out.Get("confidence"))
	if !ok {
		confidence = 0
	}

	reasoning := []string{"no_reasoning"}
	if r := out.Get("reasoning"); r.IsArray() {
		reasoning = textList(r)
	}
	riskFlags := []string{}
	if r := out.Get("risk_flags"); r.IsArray() {
		riskFlags = textList(r)
	}
	notes := ""
	if n := out.Get("notes"); n.Type == gjson.String {
		notes = truncateRunes(n.Str, maxNotesRunes)
	}

	return model.DecisionOutput{
		Decision:         decision,
		ChangePct:        change,
		Confidence:       confidence,
		RequiresApproval: true,
		Reasoning:        reasoning,
		RiskFlags:        riskFlags,
		Notes:            notes,
	}
}

// toNumber coerces a JSON value to a finite number. Missing and null count
// as zero; numeric strings are parsed; arrays and objects are rejected.
func toNumber(v gjson.Result) (float64, bool) {
	var f float64
	switch v.Type {
	case gjson.Null:
		return 0, true
	case gjson.Number:
		f = v.Num
	case gjson.True:
		return 1, true
	case gjson.False:
		return 0, true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, true
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func textList(arr gjson.Result) []string {
	items := arr.Array()
	if len(items) > maxListEntries {
		items = items[:maxListEntries]
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Type == gjson.String {
			out = append(out, it.Str)
			continue
		}
		out = append(out, it.Raw)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
