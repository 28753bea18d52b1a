package internal

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Flatten takes a nested map and returns a new map with the keys flattened into a single level.
// Nested map keys are joined with a "." and list elements with their index,
// so `{"a": {"b": 1}, "c": [10, 20]}` becomes `{"a.b": 1, "c.0": 10, "c.1": 20}`.
// Maps inside lists keep flattening (`commits.0.message`); any other list
// element is stored whole under its index key.
func Flatten(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range data {
		flattenInto(out, key, value)
	}
	return out
}

func flattenInto(out map[string]interface{}, path string, value interface{}) {
	switch typed := value.(type) {
	case map[string]interface{}:
		for key, child := range typed {
			flattenInto(out, path+"."+key, child)
		}
	case []interface{}:
		for i, child := range typed {
			next := path + "." + strconv.Itoa(i)
			if nested, ok := child.(map[string]interface{}); ok {
				flattenInto(out, next, nested)
				continue
			}
			out[next] = child
		}
	default:
		out[path] = value
	}
}

// ComputedVars derives the aggregate template values of a push payload.
func ComputedVars(payload map[string]interface{}) map[string]interface{} {
	var added, removed, modified []string
	commits, _ := payload["commits"].([]interface{})
	for _, item := range commits {
		commit, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		added = appendFiles(added, commit["added"], "+ ")
		removed = appendFiles(removed, commit["removed"], "- ")
		modified = appendFiles(modified, commit["modified"], "* ")
	}
	return map[string]interface{}{
		"added_files":    strings.Join(added, "\n"),
		"removed_files":  strings.Join(removed, "\n"),
		"modified_files": strings.Join(modified, "\n"),
		"ln":             "\n",
	}
}

func appendFiles(lines []string, value interface{}, prefix string) []string {
	files, _ := value.([]interface{})
	for _, file := range files {
		lines = append(lines, prefix+Stringify(file))
	}
	return lines
}

// TemplateValues is the lookup table a worker message is rendered against:
// the flattened payload overlaid with ComputedVars.
func TemplateValues(payload map[string]interface{}) map[string]interface{} {
	values := Flatten(payload)
	for key, value := range ComputedVars(payload) {
		values[key] = value
	}
	return values
}

// Stringify renders a payload value the way it appears in a message.
func Stringify(value interface{}) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// DecodePayload decodes a JSON object keeping numbers as json.Number so that
// large ids render exactly.
func DecodePayload(raw []byte) (map[string]interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out map[string]interface{}
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}
