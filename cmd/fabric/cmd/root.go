// Package cmd implements the fabric CLI: a tracker subcommand and a peer
// subcommand, each starting the rpc.Server for its own Dispatch, wired
// from environment configuration via pkg/config.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fabric",
	Short: "Fabric resource-sharing node",
	Long:  `Fabric runs either a tracker (peer directory and CPU-load broker) or a peer (task executor, memory/file/IPC server) in this process.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(trackerCmd)
	rootCmd.AddCommand(peerCmd)
}
