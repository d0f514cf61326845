package transport

// Target is one HTTP endpoint under attack.
type Target struct {
	URL         string
	Method      string
	Headers     map[string]string
	Body        string
	ContentType string
	Cookies     map[string]string
	Parameters  []Parameter
}

// Parameter is a request parameter the fragment can be spliced into.
type Parameter struct {
	Name     string
	Value    string
	Location ParameterLocation
	Type     ParameterType
}

// ParameterLocation indicates where a parameter appears in the request.
type ParameterLocation int

const (
	LocationQuery ParameterLocation = iota
	LocationBody
	LocationHeader
	LocationCookie
)

// String returns a human-readable name for the location.
func (l ParameterLocation) String() string {
	names := [...]string{"query", "body", "header", "cookie"}
	if int(l) < len(names) {
		return names[l]
	}
	return "unknown"
}

// ParameterType is the inferred data type of a parameter value.
type ParameterType int

const (
	TypeString ParameterType = iota
	TypeInteger
	TypeFloat
)

// String returns the type name.
func (t ParameterType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	default:
		return "string"
	}
}

// Endpoint identifies the injection point for session bookkeeping:
// method, URL without query and the parameter name.
func (t *Target) Endpoint(param string) string {
	method := t.Method
	if method == "" {
		method = "GET"
	}
	u := t.URL
	for i := 0; i < len(u); i++ {
		if u[i] == '?' {
			u = u[:i]
			break
		}
	}
	return method + " " + u + " " + param
}
