package deployment

import (
	"github.com/meridian-cd/meridian/app"
	"github.com/meridian-cd/meridian/cmd/output"
	"github.com/meridian-cd/meridian/cmd/utils"
	"github.com/spf13/cobra"
)

func NewCmdDeploymentDrift() *cobra.Command {
	return &cobra.Command{
		Use:   "drift <deployment-id>",
		Short: "Show the latest drift report for a deployment",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseIDArg("showing drift report", args[0])

			report, err := app.GetDriftDetector().LatestReport(id)
			if err != nil {
				utils.HandleCommandError("loading drift report", err, "deployment_id", id)
				return
			}
			if report == nil {
				if err := output.FprintPlain(cmd, "No drift report recorded yet."); err != nil {
					utils.HandleCommandError("printing drift output", err)
				}
				return
			}

			out, err := output.PrintDriftReport(report)
			if err != nil {
				utils.HandleCommandError("printing drift report table", err)
				return
			}

			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing drift report output", err)
			}
		},
	}
}
