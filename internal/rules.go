package internal

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
)

// EvaluateCondition evaluates a listener condition against a push payload.
//
// Parameters are the payload's top-level values overlaid with its template
// values, so both `ref == "refs/heads/main"` and `[repository.private] ==
// false` work (dotted names need brackets). Available functions:
//
//	contains(haystack, needle)  list membership, or substring when haystack is a string
//	matches(value, pattern)     regular expression match
//	jsonpath(path)              JSONPath lookup against the raw payload
func EvaluateCondition(condition string, payload map[string]interface{}, values map[string]interface{}) (bool, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(condition, conditionFunctions(payload))
	if err != nil {
		return false, fmt.Errorf("compile condition: %w", err)
	}
	result, err := expr.Evaluate(conditionParameters(payload, values))
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("condition returned %T, want bool", result)
	}
	return ok, nil
}

func conditionParameters(payload map[string]interface{}, values map[string]interface{}) map[string]interface{} {
	params := make(map[string]interface{}, len(payload)+len(values))
	for key, value := range payload {
		params[key] = normalizeValue(value)
	}
	for key, value := range values {
		params[key] = normalizeValue(value)
	}
	return params
}

func conditionFunctions(payload map[string]interface{}) map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"contains": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
			}
			switch haystack := args[0].(type) {
			case conditionList:
				return haystack.contains(args[1]), nil
			case string:
				return strings.Contains(haystack, Stringify(args[1])), nil
			default:
				return nil, fmt.Errorf("contains haystack must be a list or a string, got %T", args[0])
			}
		},
		"matches": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("matches expects 2 arguments, got %d", len(args))
			}
			pattern, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("matches pattern must be a string")
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, err
			}
			return re.MatchString(Stringify(args[0])), nil
		},
		"jsonpath": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("jsonpath expects 1 argument, got %d", len(args))
			}
			path, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("jsonpath argument must be a string")
			}
			value, err := jsonpath.Get(path, payload)
			if err != nil {
				return nil, err
			}
			return normalizeValue(value), nil
		},
	}
}

// conditionList holds list values inside conditions. govaluate splices plain
// []interface{} values into function arguments, which would make a one-item
// list indistinguishable from a scalar. The named type keeps lists whole; it
// is not usable with the `in` operator.
type conditionList []interface{}

// contains reports exact membership, descending into nested lists.
func (l conditionList) contains(needle interface{}) bool {
	for _, item := range l {
		if nested, ok := item.(conditionList); ok {
			if nested.contains(needle) {
				return true
			}
			continue
		}
		if reflect.DeepEqual(item, needle) {
			return true
		}
	}
	return false
}

// normalizeValue converts numbers to float64, the only numeric type
// govaluate compares.
func normalizeValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case json.Number:
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case int:
		return float64(typed)
	case int64:
		return float64(typed)
	case []interface{}:
		out := make(conditionList, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return value
	}
}
