package cmd

import (
	"hpcmarket/internal/session"
	"hpcmarket/pkg/api"

	"github.com/spf13/cobra"
)

var specsCmd = &cobra.Command{
	Use:   "specs",
	Short: "Advertise your hardware specs",
	Long:  `Upload the cores, clock speed and memory the provider offers. Only open jobs fitting these specs are shown to the provider, and uploading marks the provider available again.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		cores, _ := flags.GetInt("cores")
		ghz, _ := flags.GetFloat64("ghz")
		memory, _ := flags.GetInt("memory")

		e, state, err := loggedIn(cmd, session.RoleProvider)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		defer e.Close(cmd.Context())

		specs := api.Specs{Cores: cores, ClockSpeed: ghz, Memory: memory}
		if err := e.availability(state).UploadSpecs(cmd.Context(), specs); err != nil {
			if text := state.Snapshot().Data.Banner.Text; text != "" {
				cmd.Println(text)
				return
			}
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Println(state.Snapshot().Data.Banner.Text)
	},
}

func init() {
	flags := specsCmd.Flags()
	flags.Int("cores", api.DefaultProviderSpecs.Cores, "CPU cores offered")
	flags.Float64("ghz", api.DefaultProviderSpecs.ClockSpeed, "clock speed in GHz")
	flags.Int("memory", api.DefaultProviderSpecs.Memory, "memory in MB")

	rootCmd.AddCommand(specsCmd)
}
