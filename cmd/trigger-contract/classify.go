package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PratikDhanave/trigger-contract-service/internal/bridge"
	"github.com/PratikDhanave/trigger-contract-service/internal/contract"
	"github.com/PratikDhanave/trigger-contract-service/internal/models"
)

func newClassifyCmd() *cobra.Command {
	var (
		kind        string
		decision    string
		entitlement string
		payload     string
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one update",
		Long: `Prints "terminal" or "in progress" for one update, given either its
discriminators or a native bridge payload.`,
		Example: `  trigger-contract classify --kind decision --decision allowed_immediate
  trigger-contract classify --bridge 'kind=entitlement&entitlement_kind=pending'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var u models.TriggerUpdate
			var err error
			switch {
			case payload != "":
				u, err = bridge.Decode(payload)
			case kind != "":
				u, err = models.NewUpdate(models.UpdateKind(kind), models.DecisionKind(decision),
					models.EntitlementKind(entitlement), models.Payload{})
			default:
				err = errors.New("either --kind or --bridge is required")
			}
			if err != nil {
				return err
			}

			out := output(cmd, cmd.OutOrStdout())
			verdict := out.String("in progress").Foreground(out.Color("3"))
			if contract.IsTerminal(u) {
				verdict = out.String("terminal").Foreground(out.Color("2"))
			}
			fmt.Fprintf(out, "%s: %s\n", u, verdict)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Update kind (error, journey, decision, entitlement)")
	cmd.Flags().StringVar(&decision, "decision", "", "Decision kind, for decision updates")
	cmd.Flags().StringVar(&entitlement, "entitlement", "", "Entitlement kind, for entitlement updates")
	cmd.Flags().StringVar(&payload, "bridge", "", "URL-encoded native bridge payload")
	return cmd
}
