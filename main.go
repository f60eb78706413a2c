package main

import (
	"os"

	"github.com/rtolen/vairify-guard/cmd/db"
	"github.com/rtolen/vairify-guard/cmd/env"
	"github.com/rtolen/vairify-guard/cmd/server"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "vairify-guard",
		Short: "Personal safety session monitor",
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	root.AddCommand(
		server.New(),
		env.New(),
		db.New(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
