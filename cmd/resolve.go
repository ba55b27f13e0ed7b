package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/emissions-cli/internal/engine"
)

var (
	resolveRegion      string
	resolveDescription string
	resolveContext     string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <activity> <quantity> <unit>",
	Short: "Resolve one activity and print the result as JSON",
	Example: `  emissions-cli resolve diesel 100 litres
  emissions-cli resolve electricity 500 kWh --region India
  emissions-cli resolve "steel sheet" 1000 kg --description "hot rolled coil" --context manufacturing`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := parseResolveArgs(args)
		if err != nil {
			return err
		}
		req.Region = resolveRegion
		req.Description = resolveDescription
		req.Context = resolveContext

		eng, err := engine.Build(ctx, cfg)
		if err != nil {
			return err
		}

		res := eng.Resolve(ctx, req)
		if !res.Success {
			zap.L().Info("resolve: no factor found",
				zap.String("activity", req.ActivityType),
				zap.String("error_code", string(res.ErrorCode)),
			)
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveRegion, "region", "", "region of the activity (default from config)")
	resolveCmd.Flags().StringVar(&resolveDescription, "description", "", "free-text description of the activity")
	resolveCmd.Flags().StringVar(&resolveContext, "context", "", "industry or business context")
	rootCmd.AddCommand(resolveCmd)
}

// parseResolveArgs turns positional <activity> <quantity> <unit> into a request.
func parseResolveArgs(args []string) (engine.Request, error) {
	if len(args) != 3 {
		return engine.Request{}, eris.Errorf("resolve: expected 3 arguments, got %d", len(args))
	}
	qty, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
	if err != nil {
		return engine.Request{}, eris.Errorf("resolve: quantity %q is not a number", args[1])
	}
	return engine.Request{
		ActivityType: args[0],
		Quantity:     qty,
		Unit:         args[2],
	}, nil
}
