package functions

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/isometry/thanos-sidecar/pkg/netutil"
)

// Net returns CEL functions over listen addresses.
func Net() []cel.EnvOption {
	return []cel.EnvOption{
		// net.port("0.0.0.0:10902") - returns 10902
		cel.Function("net.port",
			cel.Overload("net_port_string",
				[]*cel.Type{cel.StringType},
				cel.IntType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					s, ok := arg.(types.String)
					if !ok {
						return types.MaybeNoSuchOverloadErr(arg)
					}
					_, port, err := netutil.ParseHostPort(string(s))
					if err != nil {
						return types.NewErr("net.port: %v", err)
					}
					return types.Int(port)
				}),
			),
		),
		// net.host("0.0.0.0:10902") - returns "0.0.0.0"
		cel.Function("net.host",
			cel.Overload("net_host_string",
				[]*cel.Type{cel.StringType},
				cel.StringType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					s, ok := arg.(types.String)
					if !ok {
						return types.MaybeNoSuchOverloadErr(arg)
					}
					host, _, err := netutil.ParseHostPort(string(s))
					if err != nil {
						return types.NewErr("net.host: %v", err)
					}
					return types.String(host)
				}),
			),
		),
	}
}
