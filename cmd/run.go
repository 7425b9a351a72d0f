package cmd

import (
	"log"

	"github.com/slyfoxbot/slyfox/slyfox"
	"github.com/spf13/cobra"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Starts the SlyFox bot and status API",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			bot, err := slyfox.New(cfg)
			if err != nil {
				log.Fatalf("error creating slyfox: %s", err.Error())
			}

			if err = bot.Run(ctx); err != nil {
				log.Fatalf("error running slyfox: %s", err.Error())
			}
		},
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
}
