package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"solana-yield-agent/internal/domain"
)

// decisionSchema is the closed shape every oracle reply must have.
const decisionSchema = `{
  "type": "object",
  "required": ["advice", "pathway", "action"],
  "additionalProperties": false,
  "properties": {
    "advice":  {"type": "string", "minLength": 1},
    "pathway": {"type": "string"},
    "action":  {"type": "string", "minLength": 1}
  }
}`

var schema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("decision.json", strings.NewReader(decisionSchema)); err != nil {
		panic(err)
	}
	s, err := c.Compile("decision.json")
	if err != nil {
		panic(err)
	}
	return s
}

// Verdict is the tagged result of parsing an oracle reply: Valid or Invalid.
type Verdict interface {
	verdict()
}

// Valid carries a decision whose every field passed validation.
type Valid struct {
	Decision domain.StrategyDecision
}

// Invalid carries the reason a reply was rejected.
type Invalid struct {
	Reason string
}

func (Valid) verdict()   {}
func (Invalid) verdict() {}

// Parse validates raw oracle text. It never panics and never returns an
// action outside the known set.
func Parse(raw string) Verdict {
	obj, ok := extractObject(raw)
	if !ok {
		return Invalid{Reason: "no json object in reply"}
	}
	if !gjson.Valid(obj) {
		return Invalid{Reason: "malformed json"}
	}

	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return Invalid{Reason: fmt.Sprintf("decode: %v", err)}
	}
	if err := schema.Validate(doc); err != nil {
		return Invalid{Reason: fmt.Sprintf("schema: %v", err)}
	}

	parsed := gjson.Parse(obj)
	action, ok := domain.ParseAction(parsed.Get("action").String())
	if !ok {
		return Invalid{Reason: fmt.Sprintf("unknown action %q", parsed.Get("action").String())}
	}
	return Valid{Decision: domain.StrategyDecision{
		Advice:  strings.TrimSpace(parsed.Get("advice").String()),
		Pathway: strings.TrimSpace(parsed.Get("pathway").String()),
		Action:  action,
	}}
}

// Resolve maps a verdict onto the decision the agent acts on. Every Invalid
// verdict becomes the HOLD default.
func Resolve(v Verdict) domain.StrategyDecision {
	if ok, is := v.(Valid); is {
		return ok.Decision
	}
	return domain.HoldDecision()
}
