package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/internal/manager"
	"github.com/BoringStuffInc/mooagent/internal/oauth"
	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// Global flags shared by every subcommand.
var (
	configPath string
	logLevel   string
	debug      bool
	quiet      bool
	noBrowser  bool
)

// rootCmd represents the base command for the mooagent application.
var rootCmd = &cobra.Command{
	Use:   "mooagent",
	Short: "Manage MCP servers and their OAuth credentials",
	Long: `mooagent keeps track of the MCP servers your AI agents use and of the
credentials needed to reach them.

Remote servers protected by OAuth 2.1 are authenticated with the authorization
code flow and PKCE: mooagent discovers the authorization server, opens your
browser, receives the redirect on a loopback port and stores the resulting
tokens in tokens.json next to config.yaml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		if debug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, os.Stderr)
		return nil
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, manager.ErrAuthRequired):
		return ExitCodeAuthRequired
	case oauth.IsAuthFailure(err):
		return ExitCodeAuthFailed
	default:
		return ExitCodeError
	}
}

func defaultConfigPath() string {
	dir, err := config.DefaultConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return ""
	}
	return dir
}

func init() {
	rootCmd.SetVersionTemplate(`{{printf "mooagent version %s\n" .Version}}`)
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", defaultConfigPath(), "Configuration directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
}
