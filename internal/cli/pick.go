package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/0x6d61/sqlsiphon/internal/detector"
	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/fingerprint"
	"github.com/0x6d61/sqlsiphon/internal/transport"
)

// pickParameter runs the heuristic checks over the parameters of target
// and returns the first one that looks injectable. Without any, the first
// parameter is used.
func pickParameter(ctx context.Context, c transport.Client, target transport.Target, reg *dialect.Registry, stderr io.Writer) (transport.Parameter, error) {
	id, err := fingerprint.New(reg.All())
	if err != nil {
		return transport.Parameter{}, err
	}
	h := detector.NewHeuristic(detector.NewDiffEngine(), func(body []byte) string {
		if m := id.Match(body); m != nil {
			return m.Dialect.Name
		}
		return ""
	})

	for _, p := range target.Parameters {
		numeric := p.Type == transport.TypeInteger || p.Type == transport.TypeFloat
		prober := transport.NewProber(c, target, p, transport.DefaultBoundary(p.Type))
		res, err := h.Check(ctx, p.Name, p.Value, numeric, prober)
		if err != nil {
			return transport.Parameter{}, fmt.Errorf("checking parameter %s: %w", p.Name, err)
		}
		if res.Injectable {
			how := "boolean"
			if res.CausesError {
				how = "error " + res.Vendor
			}
			fmt.Fprintf(stderr, "[*] parameter %s looks injectable (%s)\n", p.Name, how)
			return p, nil
		}
	}
	fmt.Fprintf(stderr, "[-] no parameter looks injectable, trying %s\n", target.Parameters[0].Name)
	return target.Parameters[0], nil
}
