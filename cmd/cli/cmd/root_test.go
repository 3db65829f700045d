package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"

	"hpcmarket/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	config.Bind(viper.GetViper())
}

// resetCommands puts every flag of the command tree back to its default and
// gives every command a fresh context, since rootCmd is shared by all tests.
func resetCommands(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	cmd.SetContext(context.Background())
	for _, sub := range cmd.Commands() {
		resetCommands(sub)
	}
}

// execute runs hpcctl with args and returns what it printed.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	resetCommands(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(bytes.NewReader(nil))
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("command failed: %v", err)
	}
	return buf.String()
}

func TestRootCommand_DefaultURL(t *testing.T) {
	resetViper()

	cmd := &cobra.Command{}
	cmd.PersistentFlags().String("url", config.DefaultURL, "marketplace backend URL")
	viper.BindPFlag("url", cmd.PersistentFlags().Lookup("url"))

	url := viper.GetString("url")
	if url != "http://localhost:8000" {
		t.Errorf("expected default url http://localhost:8000, got: %s", url)
	}
}

func TestRootCommand_EnvVarBinding(t *testing.T) {
	resetViper()

	t.Setenv("HPCMARKET_ID", "7")
	t.Setenv("HPCMARKET_URL", "http://custom-url:8080")

	if id := viper.GetInt64("id"); id != 7 {
		t.Errorf("expected id from env var, got: %d", id)
	}
	if url := viper.GetString("url"); url != "http://custom-url:8080" {
		t.Errorf("expected url from env var, got: %s", url)
	}
}

func TestRootCommand_ExecuteReturnsNoError(t *testing.T) {
	resetViper()

	out := execute(t, "--help")
	if !bytes.Contains([]byte(out), []byte("hpcctl")) {
		t.Errorf("expected help output, got: %s", out)
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := map[string]bool{
		"client":                        false,
		"provider":                      false,
		"submit":                        false,
		"requests":                      false,
		"bids [request_id]":             false,
		"accept [request_id] [bid_id]": false,
		"jobs":                          false,
		"bid [request_id]":              false,
		"specs":                         false,
		"history":                       false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Use]; ok {
			want[cmd.Use] = true
		}
	}
	for use, found := range want {
		if !found {
			t.Errorf("expected %q subcommand to be registered with root command", use)
		}
	}
}

func TestExecute_ReturnsError(t *testing.T) {
	resetViper()
	resetCommands(rootCmd)

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"unknown-command-xyz"})

	if err := Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRootCommand_CustomConfigFile(t *testing.T) {
	resetViper()

	tmpFile, err := os.CreateTemp("", "hpcctl-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	tmpFile.WriteString("url: http://custom-from-config:9999\nid: 3\npoll_interval: 2s\n")
	tmpFile.Close()

	cfgFile = tmpFile.Name()
	initConfig()

	if url := viper.GetString("url"); url != "http://custom-from-config:9999" {
		t.Errorf("expected url from config file, got: %s", url)
	}
	if id := viper.GetInt64("id"); id != 3 {
		t.Errorf("expected id from config file, got: %d", id)
	}

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		t.Fatalf("FromViper failed: %v", err)
	}
	if cfg.PollInterval.String() != "2s" {
		t.Errorf("expected poll interval from config file, got: %s", cfg.PollInterval)
	}

	cfgFile = ""
}
