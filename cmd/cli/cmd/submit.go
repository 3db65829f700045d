package cmd

import (
	"errors"
	"os"

	"hpcmarket/internal/session"
	"hpcmarket/internal/transport"
	"hpcmarket/pkg/api"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit code with its hardware requirements",
	Long: `Submit a code request to the marketplace. Providers whose hardware matches
the requested cores, clock speed and memory can then bid on it.

The code is read from --file or given inline with --code.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		code, _ := flags.GetString("code")
		file, _ := flags.GetString("file")
		cores, _ := flags.GetInt("cores")
		ghz, _ := flags.GetFloat64("ghz")
		memory, _ := flags.GetInt("memory")

		if code != "" && file != "" {
			cmd.Println("Error: --code and --file are mutually exclusive")
			return
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				cmd.Printf("Failed to read code file: %v\n", err)
				return
			}
			code = string(data)
		}
		specs := api.Specs{Cores: cores, ClockSpeed: ghz, Memory: memory}
		if specs.Cores <= 0 || specs.ClockSpeed <= 0 || specs.Memory <= 0 {
			cmd.Println("Error: --cores, --ghz and --memory must be positive")
			return
		}

		e, state, err := loggedIn(cmd, session.RoleClient)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		defer e.Close(cmd.Context())

		rid, err := e.bidding(state).SubmitRequest(cmd.Context(), specs, code)
		if err != nil {
			printFailure(cmd, "Submit failed", err)
			return
		}

		cmd.Printf("✓ Request submitted!\nRequest ID: %d\n", rid)
	},
}

// printFailure prints err with the status code when the backend rejected the
// call.
func printFailure(cmd *cobra.Command, what string, err error) {
	if rej, ok := transport.AsRejection(err); ok {
		cmd.Printf("%s (%d): %s\n", what, rej.StatusCode, rej.Message)
		return
	}
	var te *transport.TransportError
	if errors.As(err, &te) {
		cmd.Printf("%s: network error: %v\n", what, te.Err)
		return
	}
	cmd.Printf("%s: %v\n", what, err)
}

func init() {
	flags := submitCmd.Flags()
	flags.String("code", "", "code to run, inline")
	flags.StringP("file", "f", "", "file containing the code to run")
	flags.Int("cores", api.DefaultClientSpecs.Cores, "required CPU cores")
	flags.Float64("ghz", api.DefaultClientSpecs.ClockSpeed, "required clock speed in GHz")
	flags.Int("memory", api.DefaultClientSpecs.Memory, "required memory in MB")

	rootCmd.AddCommand(submitCmd)
}
