package deployment

import (
	"github.com/meridian-cd/meridian/app"
	"github.com/meridian-cd/meridian/cmd/output"
	"github.com/meridian-cd/meridian/cmd/utils"
	"github.com/spf13/cobra"
)

func NewCmdDeploymentShow() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "show <deployment-id>",
		Short: "Show deployment details",
		Long: `Display detailed information about one deployment, including its
plan summary, phase-marked execution log, and error if it failed.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseIDArg("showing deployment", args[0])

			deployment, err := app.GetOrchestrator().GetDeployment(id)
			if err != nil {
				utils.HandleCommandError("showing deployment", err, "deployment_id", id)
				return
			}

			out, err := output.PrintDeploymentDetails(deployment, short)
			if err != nil {
				utils.HandleCommandError("printing deployment details", err)
				return
			}

			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing deployment details output", err)
			}
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Omit logs and timestamps")
	return cmd
}
