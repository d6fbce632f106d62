package functions

import (
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/prometheus/common/model"
)

// Duration returns CEL functions for the duration syntax thanos flags accept.
func Duration() []cel.EnvOption {
	return []cel.EnvOption{
		// prom.duration("2w") - parses a Prometheus duration (y, w, d, h, m, s, ms)
		cel.Function("prom.duration",
			cel.Overload("prom_duration_string",
				[]*cel.Type{cel.StringType},
				cel.DurationType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					s, ok := arg.(types.String)
					if !ok {
						return types.MaybeNoSuchOverloadErr(arg)
					}
					d, err := model.ParseDuration(string(s))
					if err != nil {
						return types.NewErr("prom.duration: %v", err)
					}
					return types.Duration{Duration: time.Duration(d)}
				}),
			),
		),
	}
}
