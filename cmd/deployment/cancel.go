package deployment

import (
	"github.com/meridian-cd/meridian/app"
	"github.com/meridian-cd/meridian/cmd/output"
	"github.com/meridian-cd/meridian/cmd/utils"
	"github.com/spf13/cobra"
)

func NewCmdDeploymentCancel() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <deployment-id>",
		Short: "Cancel an in-flight deployment",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseIDArg("cancelling deployment", args[0])

			deployment, err := app.GetOrchestrator().Cancel(id)
			if err != nil {
				utils.HandleCommandError("cancelling deployment", err, "deployment_id", id)
				return
			}

			if err := output.FprintSuccess(cmd, "Cancellation requested for deployment %s (status: %s)",
				deployment.ID, deployment.Status); err != nil {
				utils.HandleCommandError("printing cancellation output", err)
			}
		},
	}
}
