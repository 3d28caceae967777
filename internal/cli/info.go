package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lvcoi/freeytzone/internal/app"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().Bool("json", false, "Print results as JSON lines")
	infoCmd.Flags().IntP("jobs", "j", 1, "Number of URLs resolved concurrently")
	infoCmd.Flags().BoolP("verbose", "v", false, "Log resolver activity to stderr")
}

var infoCmd = &cobra.Command{
	Use:     "info <url> [url...]",
	Short:   "Resolve video metadata without starting the server",
	Example: "freeytzone info https://youtu.be/dQw4w9WgXcQ\nfreeytzone info --json --jobs 4 URL1 URL2",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if lo.Must(cmd.Flags().GetBool("verbose")) {
		log.SetLevel(logrus.DebugLevel)
	}

	a, err := app.New(cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	results, code := app.Run(cmd.Context(), args, a.Resolver, lo.Must(cmd.Flags().GetInt("jobs")))

	out := cmd.OutOrStdout()
	if lo.Must(cmd.Flags().GetBool("json")) {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		for _, res := range results {
			if err := enc.Encode(res); err != nil {
				return err
			}
		}
	} else {
		for _, res := range results {
			if res.Err != nil {
				fmt.Fprintln(out, renderFailure(res))
				continue
			}
			fmt.Fprintln(out, renderMetadata(*res.Metadata))
		}
	}

	if code != app.ExitOK {
		return &exitError{code: code}
	}
	return nil
}
