package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.3.0"

	configPath string
)

func main() {
	root := &cobra.Command{
		Use:   "relayd",
		Short: "Durable orchestration relay for long-running agent tasks",
		Long: "relayd accepts task trigger requests, drives the remote coding agent's\n" +
			"SSE stream, keeps durable per-task state with exactly one writer per\n" +
			"task, and reports lifecycle changes to the system of record.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ./relay.yaml, ~/.relay/relay.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relayd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relayd %s\n", version)
		},
	}
}
