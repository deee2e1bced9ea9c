package deployment

import (
	"github.com/meridian-cd/meridian/app"
	"github.com/meridian-cd/meridian/cmd/output"
	"github.com/meridian-cd/meridian/cmd/utils"
	"github.com/spf13/cobra"
)

func NewCmdDeploymentList() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all deployments",
		Long: `Display all deployments in a table format including:
- Deployment ID, blueprint, and target environment
- Current status (with color coding)
- Creation timestamp`,
		Run: func(cmd *cobra.Command, args []string) {
			deployments, err := app.GetOrchestrator().ListDeployments()
			if err != nil {
				utils.HandleCommandError("listing deployments", err)
				return
			}

			if len(deployments) == 0 {
				if err := output.FprintPlain(cmd, "No deployments found."); err != nil {
					utils.HandleCommandError("printing no deployments message", err)
				}
				return
			}

			out, err := output.PrintDeploymentList(deployments)
			if err != nil {
				utils.HandleCommandError("printing deployment list table", err)
				return
			}

			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing deployment list output", err)
			}
		},
	}
}
