// Command ofresolve is the CLI entry point: one subcommand per spec.md
// §4.9 top-level operation, each a thin caller over internal/core,
// following the teacher's cobra root-command-plus-subcommands layout.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oidf-tools/ofresolve/internal/config"
	"github.com/oidf-tools/ofresolve/internal/core"
	"github.com/oidf-tools/ofresolve/internal/fetch"
)

var (
	configPath string
	insecure   bool
	exportPath string
	anchorArgs []string
)

var rootCmd = &cobra.Command{
	Use:   "ofresolve",
	Short: "An OpenID Connect Federation trust chain resolver and policy engine",
	Long: `ofresolve fetches, verifies, and resolves OpenID Connect Federation
entity statements: trust chain resolution, metadata policy evaluation,
subordinate listing, and federation subtree discovery.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file providing default trust anchors")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "disable TLS certificate verification")
	rootCmd.PersistentFlags().StringVar(&exportPath, "export", "", "write a .dot or .json rendering of the result to this file, in addition to stdout")
	rootCmd.PersistentFlags().StringArrayVar(&anchorArgs, "anchor", nil, "trust anchor entity id (repeatable); defaults to --config's trust_anchors")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		slog.Debug("run", "trace_id", uuid.NewString(), "command", cmd.Name())
	}
}

// Execute runs the root command, printing any error to stderr and
// exiting non-zero, matching the teacher's fatal-on-setup-error style.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newCore builds a Core over a Fetcher honoring --insecure, matching
// spec.md §5's one-client-per-invocation rule.
func newCore() *core.Core {
	return core.New(fetch.WithInsecureSkipVerify(insecure))
}

// loadConfig loads --config if given, returning a nil Config (not an
// error) when the flag was omitted: anchorIDs (helpers.go) then has only
// --anchor to go on, and reports an error when that is empty too.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return nil, nil
	}
	return config.Load(configPath)
}
