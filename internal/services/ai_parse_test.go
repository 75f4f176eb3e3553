package services

import (
	"errors"
	"testing"
)

func TestParseModelJSONDirect(t *testing.T) {
	obj, err := ParseModelJSON(`{"subject_name":"Calculus","concepts":[]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj["subject_name"] != "Calculus" {
		t.Fatalf("expected subject_name Calculus, got %v", obj["subject_name"])
	}
}

func TestParseModelJSONFencedWithTrailingCommas(t *testing.T) {
	raw := "Here is the graph you asked for:\n```json\n{\n  \"concepts\": [\n    {\"id\": \"node_1\", \"title\": \"Limits\",},\n  ],\n}\n```\nLet me know if you need anything else."
	obj, err := ParseModelJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	concepts, ok := obj["concepts"].([]any)
	if !ok || len(concepts) != 1 {
		t.Fatalf("expected one concept, got %v", obj["concepts"])
	}
}

func TestParseModelJSONControlCharacters(t *testing.T) {
	raw := "{\"title\": \"bad\x01value\"}"
	obj, err := ParseModelJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj["title"] != "bad value" {
		t.Fatalf("expected control char replaced, got %q", obj["title"])
	}
}

func TestParseModelJSONBracesInsideStrings(t *testing.T) {
	raw := "noise {\"formula\": \"f(x) = {a} + }b{\"} trailing"
	obj, err := ParseModelJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj["formula"] != "f(x) = {a} + }b{" {
		t.Fatalf("string braces mangled: %q", obj["formula"])
	}
}

func TestParseModelJSONNotJSON(t *testing.T) {
	_, err := ParseModelJSON("I am sorry, I cannot help with that.")
	if !errors.Is(err, ErrUnparsableOutput) {
		t.Fatalf("expected ErrUnparsableOutput, got %v", err)
	}
}

func TestParseModelJSONEmpty(t *testing.T) {
	_, err := ParseModelJSON("")
	if !errors.Is(err, ErrUnparsableOutput) {
		t.Fatalf("expected ErrUnparsableOutput, got %v", err)
	}
}
