package deployment

import (
	"github.com/meridian-cd/meridian/app"
	"github.com/meridian-cd/meridian/cmd/output"
	"github.com/meridian-cd/meridian/cmd/utils"
	"github.com/spf13/cobra"
)

func NewCmdDeploymentReject() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <deployment-id>",
		Short: "Reject a deployment awaiting manual sign-off",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseIDArg("rejecting deployment", args[0])

			deployment, err := app.GetOrchestrator().Reject(id, reason)
			if err != nil {
				utils.HandleCommandError("rejecting deployment", err, "deployment_id", id)
				return
			}

			if err := output.FprintSuccess(cmd, "Deployment %s rejected (status: %s)",
				deployment.ID, deployment.Status); err != nil {
				utils.HandleCommandError("printing rejection output", err)
			}
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Reason for the rejection")
	return cmd
}
