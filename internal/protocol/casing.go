package protocol

import "strings"

// initialisms are kept upper-case when rendering Go mixedCaps field names,
// matching the convention the teacher and the wider corpus use for
// identifiers like ID, URL, and API.
var initialisms = map[string]string{
	"id":  "ID",
	"url": "URL",
	"api": "API",
}

// splitWords breaks a snake_case or PascalCase/mixedCaps field name into its
// lowercase constituent words.
func splitWords(name string) []string {
	if strings.Contains(name, "_") {
		parts := strings.Split(name, "_")
		words := make([]string, 0, len(parts))
		for _, p := range parts {
			if p != "" {
				words = append(words, strings.ToLower(p))
			}
		}
		return words
	}

	var words []string
	var cur strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' && !(runes[i-1] >= 'A' && runes[i-1] <= 'Z') {
			words = append(words, strings.ToLower(cur.String()))
			cur.Reset()
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		words = append(words, strings.ToLower(cur.String()))
	}
	return words
}

// toSnakeCase renders field words as snake_case (rust, python wire shape).
func toSnakeCase(name string) string {
	return strings.Join(splitWords(name), "_")
}

// toPascalCase renders field words as PascalCase (csharp wire shape).
func toPascalCase(name string) string {
	words := splitWords(name)
	var b strings.Builder
	for _, w := range words {
		if up, ok := initialisms[w]; ok {
			b.WriteString(up)
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]) + w[1:])
	}
	return b.String()
}

// toMixedCaps renders field words as Go-style mixedCaps (lowerCamelCase)
// with known initialisms upper-cased, e.g. "entity_id" -> "entityID".
func toMixedCaps(name string) string {
	words := splitWords(name)
	var b strings.Builder
	for i, w := range words {
		if up, ok := initialisms[w]; ok {
			b.WriteString(up)
			continue
		}
		if i == 0 {
			b.WriteString(w)
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]) + w[1:])
	}
	return b.String()
}

// toTitleCaseEnum renders an enum variant as TitleCase (csharp expects
// "Player" not "player").
func toTitleCaseEnum(v string) string {
	if v == "" {
		return v
	}
	return strings.ToUpper(v[:1]) + strings.ToLower(v[1:])
}

// toLowerEnum renders an enum variant as lowercase (rust, python, go expect
// "player" not "Player").
func toLowerEnum(v string) string {
	return strings.ToLower(v)
}
