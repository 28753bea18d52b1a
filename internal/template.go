package internal

import "strings"

// A message template is plain text with `{name}` references. `\{` and `\}`
// stand for literal braces and never open or close a reference. A name runs
// to the first closing brace and may not be empty or contain a newline or an
// escaped brace. An opening brace inside a name is part of it, so `{{a}}`
// references "{a". Anything that does not form a reference is kept as text.

type templateSegment struct {
	text     string
	variable string
	isVar    bool
}

func parseTemplate(template string) []templateSegment {
	var (
		segments []templateSegment
		literal  strings.Builder
	)
	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, templateSegment{text: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(template); {
		c := template[i]
		if c == '\\' && i+1 < len(template) && isBrace(template[i+1]) {
			literal.WriteByte(template[i+1])
			i += 2
			continue
		}
		if c == '{' {
			if end, ok := scanVariable(template, i+1); ok {
				flush()
				segments = append(segments, templateSegment{variable: template[i+1 : end], isVar: true})
				i = end + 1
				continue
			}
		}
		literal.WriteByte(c)
		i++
	}
	flush()
	return segments
}

// scanVariable returns the index of the brace closing a reference whose name
// starts at start.
func scanVariable(template string, start int) (int, bool) {
	for j := start; j < len(template); j++ {
		switch template[j] {
		case '}':
			return j, j > start
		case '\n':
			return 0, false
		case '\\':
			if j+1 < len(template) && isBrace(template[j+1]) {
				return 0, false
			}
		}
	}
	return 0, false
}

func isBrace(c byte) bool {
	return c == '{' || c == '}'
}

// ExtractVariables lists the names referenced by template in order of
// occurrence, repeats included.
func ExtractVariables(template string) []string {
	var names []string
	for _, segment := range parseTemplate(template) {
		if segment.isVar {
			names = append(names, segment.variable)
		}
	}
	return names
}

// ReplaceVariables renders template against values in a single pass.
// References without a value are left as `{name}`; replacement text is never
// scanned again.
func ReplaceVariables(template string, values map[string]interface{}) string {
	var out strings.Builder
	out.Grow(len(template))
	for _, segment := range parseTemplate(template) {
		if !segment.isVar {
			out.WriteString(segment.text)
			continue
		}
		value, ok := values[segment.variable]
		if !ok {
			out.WriteString("{" + segment.variable + "}")
			continue
		}
		out.WriteString(Stringify(value))
	}
	return out.String()
}
