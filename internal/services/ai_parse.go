package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnparsableOutput means the model text survived none of the parse stages.
// It is a "try again" condition for the user, not a programming fault.
var ErrUnparsableOutput = errors.New("model did not return a usable format, try again")

var (
	codeFenceRe     = regexp.MustCompile("(?i)```json\\s*|```\\s*")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	controlCharRe   = regexp.MustCompile(`[\x00-\x1F\x7F]`)
)

// ParseModelJSON extracts one JSON object from raw model text. Stages, each
// attempted only if the previous failed:
//  1. direct parse of the whole string;
//  2. strip code fences, take the first balanced {...} region, parse that;
//  3. textual repairs on that region (trailing commas, control characters).
//
// All-or-nothing: no partial object is ever returned.
func ParseModelJSON(raw string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj, nil
	}

	cleaned := strings.TrimSpace(codeFenceRe.ReplaceAllString(raw, ""))
	candidate, ok := firstBalancedObject(cleaned)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrUnparsableOutput)
	}

	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		return obj, nil
	}

	repaired := trailingCommaRe.ReplaceAllString(candidate, "$1")
	repaired = controlCharRe.ReplaceAllString(repaired, " ")
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableOutput, err)
	}
	return obj, nil
}

// firstBalancedObject returns the substring from the first '{' to its
// matching '}', tracking strings and escapes so braces inside values don't
// throw off the depth count. Falls back to the greedy first-to-last span when
// the object is unbalanced (truncated output), letting the repair stage try.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	end := strings.LastIndexByte(s, '}')
	if end > start {
		return s[start : end+1], true
	}
	return "", false
}
