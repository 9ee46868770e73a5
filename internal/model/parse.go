package model

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/dgallion1/docstruct/internal/node"
)

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// parseNodes accepts a bare node array or an object wrapping it under
// "nodes", then sanitizes the result. dropped counts undecodable and
// rejected nodes together.
func parseNodes(raw string) ([]node.Node, int, error) {
	text := stripCodeBlock(raw)
	if strings.HasPrefix(text, "{") {
		var wrapped struct {
			Nodes json.RawMessage `json:"nodes"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
			return nil, 0, err
		}
		if len(wrapped.Nodes) == 0 {
			return nil, 0, errors.New(`object answer without "nodes"`)
		}
		text = string(wrapped.Nodes)
	}

	nodes, skipped, err := node.DecodeNodes([]byte(text))
	if err != nil {
		return nil, 0, err
	}
	nodes, dropped := node.Sanitize(nodes)
	return nodes, skipped + dropped, nil
}

func parseEvaluation(raw string, threshold float64) (*Evaluation, error) {
	var eval Evaluation
	if err := json.Unmarshal([]byte(stripCodeBlock(raw)), &eval); err != nil {
		return nil, err
	}
	eval.Score = min(max(eval.Score, 0), 1)
	if threshold > 0 {
		eval.Passed = eval.Score >= threshold
	}
	return &eval, nil
}
