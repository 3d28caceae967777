package cli

import (
	"fmt"
	"strings"

	"github.com/lvcoi/freeytzone/internal/app"
	"github.com/lvcoi/freeytzone/internal/resolver"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the configured backends can run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logrus.New()
		log.SetLevel(logrus.WarnLevel)

		a, err := app.New(cfg, log, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		status := a.Resolver.Status(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), renderStatus(status))

		for _, msg := range status {
			if strings.HasPrefix(msg, resolver.StatusUnavailable) {
				return &exitError{code: app.ExitUnavailable}
			}
		}
		return nil
	},
}
