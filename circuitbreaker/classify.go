package circuitbreaker

import (
	"reflect"
	"strings"
)

// Classify reports whether err is recognized by the given patterns. A
// pattern matches when it equals the error's concrete type name or occurs
// as a substring of the error's message. An empty pattern list recognizes
// every error.
func Classify(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	if len(patterns) == 0 {
		return true
	}

	name := errorTypeName(err)
	msg := err.Error()
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if p == name || strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func errorTypeName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
