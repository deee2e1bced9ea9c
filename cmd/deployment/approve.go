package deployment

import (
	"github.com/meridian-cd/meridian/app"
	"github.com/meridian-cd/meridian/cmd/output"
	"github.com/meridian-cd/meridian/cmd/utils"
	"github.com/spf13/cobra"
)

func NewCmdDeploymentApprove() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <deployment-id>",
		Short: "Approve a deployment awaiting manual sign-off",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseIDArg("approving deployment", args[0])

			deployment, err := app.GetOrchestrator().Approve(id)
			if err != nil {
				utils.HandleCommandError("approving deployment", err, "deployment_id", id)
				return
			}

			if err := output.FprintSuccess(cmd, "Deployment %s approved (status: %s)",
				deployment.ID, deployment.Status); err != nil {
				utils.HandleCommandError("printing approval output", err)
			}
		},
	}
}
