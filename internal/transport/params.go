package transport

import (
	"net/url"
	"regexp"
	"strings"
)

// integerPattern matches an optional minus sign followed by one or more digits.
var integerPattern = regexp.MustCompile(`^-?[0-9]+$`)

// floatPattern matches an optional minus sign, one or more digits, a dot, then one or more digits.
var floatPattern = regexp.MustCompile(`^-?[0-9]+\.[0-9]+$`)

// ParseParameters extracts all parameters from a URL and body.
func ParseParameters(rawURL, body, contentType string) []Parameter {
	var params []Parameter
	params = append(params, ParseURLParameters(rawURL)...)
	params = append(params, ParseBodyParameters(body, contentType)...)
	return params
}

// ParseURLParameters extracts parameters from URL query string only.
func ParseURLParameters(rawURL string) []Parameter {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return parseFormValues(parsed.RawQuery, LocationQuery)
}

// ParseBodyParameters extracts parameters from an
// application/x-www-form-urlencoded body.
func ParseBodyParameters(body, contentType string) []Parameter {
	if body == "" || !isFormURLEncoded(contentType) {
		return nil
	}
	return parseFormValues(body, LocationBody)
}

// InferType guesses the parameter type from its value.
func InferType(value string) ParameterType {
	if integerPattern.MatchString(value) {
		return TypeInteger
	}
	if floatPattern.MatchString(value) {
		return TypeFloat
	}
	return TypeString
}

// Find returns the parameter called name, or the first parameter when name
// is empty.
func Find(params []Parameter, name string) (Parameter, bool) {
	for _, p := range params {
		if name == "" || p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// parseFormValues splits a form encoded string keeping the order in which
// parameters appear, so the default injection point is stable.
func parseFormValues(raw string, location ParameterLocation) []Parameter {
	var params []Parameter
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		params = append(params, Parameter{
			Name:     name,
			Value:    value,
			Location: location,
			Type:     InferType(value),
		})
	}
	return params
}

// isFormURLEncoded checks whether the content type indicates
// application/x-www-form-urlencoded. An empty content type is treated as
// form-urlencoded for convenience.
func isFormURLEncoded(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return strings.EqualFold(mediaType, "application/x-www-form-urlencoded")
}
