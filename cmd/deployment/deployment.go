// Package deployment provides CLI commands for inspecting and operating on
// deployments.
package deployment

import (
	"github.com/google/uuid"
	"github.com/meridian-cd/meridian/cmd/utils"
	"github.com/spf13/cobra"
)

func NewCmdDeployment() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployment",
		Short: "Manage deployments",
		Long:  `Inspect, approve, reject, and cancel deployments.`,
	}

	cmd.AddCommand(NewCmdDeploymentList())
	cmd.AddCommand(NewCmdDeploymentShow())
	cmd.AddCommand(NewCmdDeploymentApprove())
	cmd.AddCommand(NewCmdDeploymentReject())
	cmd.AddCommand(NewCmdDeploymentCancel())
	cmd.AddCommand(NewCmdDeploymentDrift())
	return cmd
}

// parseIDArg parses the deployment ID positional argument, exiting on
// malformed input
func parseIDArg(operation, arg string) uuid.UUID {
	id, err := uuid.Parse(arg)
	if err != nil {
		utils.HandleInvalidUUID(operation, arg)
	}
	return id
}
