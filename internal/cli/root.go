// Package cli implements the freeytzone command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/lvcoi/freeytzone/internal/config"
	"github.com/lvcoi/freeytzone/internal/resolver"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const appName = "freeytzone"

// exitError carries a specific process exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a freeytzone.toml file")
	rootCmd.PersistentFlags().StringP("backend", "b", "", "Primary resolver backend")
	rootCmd.PersistentFlags().String("fallback", "", `Fallback resolver backend ("none" disables it)`)
	rootCmd.PersistentFlags().Bool("demo", false, "Serve fixed demo metadata instead of resolving")

	completeBackends := func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return resolver.Names(), cobra.ShellCompDirectiveNoFileComp
	}
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("backend", completeBackends))
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("fallback", completeBackends))

	rootCmd.Flags().IntP("port", "p", 0, "Port to listen on")
}

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Look up YouTube video metadata and download options",
	Long:          "freeytzone serves a small web page and JSON API that resolve a YouTube URL into title, uploader, best quality and download options.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	cc.Init(&cc.Config{
		RootCmd:       rootCmd,
		Headings:      cc.HiCyan + cc.Bold + cc.Underline,
		Commands:      cc.HiYellow + cc.Bold,
		Example:       cc.Italic,
		ExecName:      cc.Bold,
		Flags:         cc.Bold,
		FlagsDataType: cc.Italic + cc.HiBlue,
	})

	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), strings.TrimSpace(err.Error()))
	return 1
}

// loadConfig reads configuration and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	if path := lo.Must(flags.GetString("config")); path != "" {
		if err := os.Setenv(config.EnvConfigPath, path); err != nil {
			return config.Config{}, err
		}
	}

	cfg, err := config.Load(afero.NewOsFs())
	if err != nil {
		return config.Config{}, err
	}

	if flags.Changed("backend") {
		cfg.Resolver.Backend = strings.ToLower(strings.TrimSpace(lo.Must(flags.GetString("backend"))))
	}
	if flags.Changed("fallback") {
		cfg.Resolver.Fallback = strings.ToLower(strings.TrimSpace(lo.Must(flags.GetString("fallback"))))
		if cfg.Resolver.Fallback == "none" {
			cfg.Resolver.Fallback = ""
		}
	}
	if flags.Changed("demo") && lo.Must(flags.GetBool("demo")) {
		cfg.Demo = true
		cfg.Resolver.Backend = resolver.BackendDemo
		cfg.Resolver.Fallback = ""
		cfg.DownloadMode = config.DownloadPlaceholder
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Server.Port = lo.Must(flags.GetInt("port"))
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
