package cds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RuleLogic is the decoded form of a rule payload. Each rule type has its own
// implementation; types without a dedicated check decode to UnknownLogic.
type RuleLogic interface {
	Type() RuleType
}

type InteractionPair struct {
	DrugA string
	DrugB string
}

// InteractionLogic lists drug pairs that interact. Names are lowercased and
// matched as substrings.
type InteractionLogic struct {
	Pairs []InteractionPair
}

func (InteractionLogic) Type() RuleType { return RuleDrugInteraction }

// UnknownLogic carries the payload of a rule type no check interprets yet.
type UnknownLogic struct {
	RuleType RuleType
	Raw      json.RawMessage
}

func (u UnknownLogic) Type() RuleType { return u.RuleType }

// DecodeLogic validates raw against the schema for t.
func DecodeLogic(t RuleType, raw json.RawMessage) (RuleLogic, error) {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("rule_logic must be a JSON object")
	}
	switch t {
	case RuleDrugInteraction:
		return decodeInteractions(raw)
	default:
		var obj map[string]interface{}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("invalid rule_logic: %w", err)
		}
		return UnknownLogic{RuleType: t, Raw: raw}, nil
	}
}

func decodeInteractions(raw json.RawMessage) (InteractionLogic, error) {
	var payload struct {
		Interactions [][]string `json:"interactions"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return InteractionLogic{}, fmt.Errorf("invalid DrugInteraction rule_logic: %w", err)
	}

	logic := InteractionLogic{Pairs: make([]InteractionPair, 0, len(payload.Interactions))}
	for i, pair := range payload.Interactions {
		if len(pair) != 2 {
			return InteractionLogic{}, fmt.Errorf("interactions[%d]: expected a pair of drug names, got %d", i, len(pair))
		}
		a := strings.ToLower(strings.TrimSpace(pair[0]))
		b := strings.ToLower(strings.TrimSpace(pair[1]))
		if a == "" || b == "" {
			return InteractionLogic{}, fmt.Errorf("interactions[%d]: drug names must not be empty", i)
		}
		logic.Pairs = append(logic.Pairs, InteractionPair{DrugA: a, DrugB: b})
	}
	return logic, nil
}
