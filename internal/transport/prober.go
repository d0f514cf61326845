package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/0x6d61/sqlsiphon/internal/oracle"
	"github.com/0x6d61/sqlsiphon/internal/payload"
)

// Prober sends fragments to one parameter of a Target. The fragment is
// wrapped in the boundary and appended to the parameter's original value.
type Prober struct {
	client   Client
	target   Target
	param    Parameter
	boundary payload.Boundary
}

// NewProber returns a Prober injecting into param of target.
func NewProber(c Client, target Target, param Parameter, b payload.Boundary) *Prober {
	return &Prober{client: c, target: target, param: param, boundary: b}
}

// DefaultBoundary closes a quoted value for string parameters and comments
// out the rest of the query.
func DefaultBoundary(t ParameterType) payload.Boundary {
	if t == TypeString {
		return payload.Boundary{Prefix: "'", Suffix: "-- -"}
	}
	return payload.Boundary{Suffix: "-- -"}
}

// Probe implements oracle.Prober.
func (p *Prober) Probe(ctx context.Context, query string) (*oracle.Response, error) {
	resp, err := p.do(ctx, p.param.Value+p.boundary.Wrap(query).String())
	if err != nil {
		return nil, err
	}
	return &oracle.Response{Body: resp.Body, Elapsed: resp.Duration, Status: resp.StatusCode}, nil
}

// Send requests the page with value as the raw parameter value, without
// the boundary.
func (p *Prober) Send(ctx context.Context, value string) ([]byte, error) {
	resp, err := p.do(ctx, value)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (p *Prober) do(ctx context.Context, value string) (*Response, error) {
	req, err := p.request(value)
	if err != nil {
		return nil, err
	}
	return p.client.Do(ctx, req)
}

func (p *Prober) request(value string) (*Request, error) {
	req := &Request{
		Method:      p.target.Method,
		URL:         p.target.URL,
		Headers:     p.target.Headers,
		Body:        p.target.Body,
		ContentType: p.target.ContentType,
		Cookies:     p.target.Cookies,
	}
	req = req.Clone()

	switch p.param.Location {
	case LocationQuery:
		u, err := url.Parse(req.URL)
		if err != nil {
			return nil, fmt.Errorf("parse target url: %w", err)
		}
		u.RawQuery = replaceFormValue(u.RawQuery, p.param.Name, value)
		req.URL = u.String()
	case LocationBody:
		req.Body = replaceFormValue(req.Body, p.param.Name, value)
	case LocationHeader:
		if req.Headers == nil {
			req.Headers = make(map[string]string)
		}
		req.Headers[p.param.Name] = value
	case LocationCookie:
		if req.Cookies == nil {
			req.Cookies = make(map[string]string)
		}
		req.Cookies[p.param.Name] = url.QueryEscape(value)
	default:
		return nil, fmt.Errorf("unsupported parameter location %s", p.param.Location)
	}
	return req, nil
}

// replaceFormValue sets name to value in a form encoded string, keeping
// every other pair byte for byte. A missing name is appended.
func replaceFormValue(raw, name, value string) string {
	pairs := strings.Split(raw, "&")
	encoded := url.QueryEscape(name) + "=" + url.QueryEscape(value)
	found := false
	for i, pair := range pairs {
		k, _, _ := strings.Cut(pair, "=")
		if key, err := url.QueryUnescape(k); err == nil && key == name && !found {
			pairs[i] = encoded
			found = true
		}
	}
	if !found {
		if raw == "" {
			return encoded
		}
		pairs = append(pairs, encoded)
	}
	return strings.Join(pairs, "&")
}
