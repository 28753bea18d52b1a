package internal

import (
	"reflect"
	"testing"
)

func TestExtractVariables(t *testing.T) {
	cases := []struct {
		template string
		want     []string
	}{
		{"plain text", nil},
		{"{a} and {b.c}", []string{"a", "b.c"}},
		{"{a}{a}", []string{"a", "a"}},
		{`\{x\}`, nil},
		{`\{{name}\}`, []string{"name"}},
		{"{}", nil},
		{"{open", nil},
		{"{{a}}", []string{"{a"}},
		{"{a{b}", []string{"a{b"}},
		{"{multi\nline}", nil},
		{"{commits.0.message}", []string{"commits.0.message"}},
	}
	for _, tc := range cases {
		got := ExtractVariables(tc.template)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ExtractVariables(%q): expected %v, got %v", tc.template, tc.want, got)
		}
	}
}

func TestReplaceVariables(t *testing.T) {
	values := map[string]interface{}{
		"repository.full_name": "octo/app",
		"ref":                  "refs/heads/main",
		"ln":                   "\n",
		"forced":               false,
		"size":                 3,
	}
	cases := []struct {
		template string
		want     string
	}{
		{"push to {repository.full_name}", "push to octo/app"},
		{"{ref}{ln}{ref}", "refs/heads/main\nrefs/heads/main"},
		{"missing {nope} stays", "missing {nope} stays"},
		{`\{literal\}`, "{literal}"},
		{`\{ref\}`, "{ref}"},
		{`\{{ref}\}`, "{refs/heads/main}"},
		{"{{ref}}", "{{ref}}"},
		{"{{ref}} on {ref}", "{{ref}} on refs/heads/main"},
		{"forced={forced} size={size}", "forced=false size=3"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ReplaceVariables(tc.template, values); got != tc.want {
			t.Fatalf("ReplaceVariables(%q): expected %q, got %q", tc.template, tc.want, got)
		}
	}
}

func TestReplaceVariablesSinglePass(t *testing.T) {
	values := map[string]interface{}{
		"a": "{b}",
		"b": "secret",
	}
	if got := ReplaceVariables("{a}", values); got != "{b}" {
		t.Fatalf("replacement text must not be rescanned, got %q", got)
	}
}

func TestReplaceVariablesOpeningBraceInName(t *testing.T) {
	values := map[string]interface{}{"{a": "inner", "a": "outer"}
	if got := ReplaceVariables("{{a}}", values); got != "inner}" {
		t.Fatalf("expected name to run from the first opening brace, got %q", got)
	}
}

func TestReplaceVariablesEmptyValues(t *testing.T) {
	if got := ReplaceVariables(`{x} \{y\}`, map[string]interface{}{}); got != "{x} {y}" {
		t.Fatalf("unexpected output %q", got)
	}
}
