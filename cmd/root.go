package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/numlog/cmd/client"
	"github.com/ValentinKolb/numlog/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "numlog",
		Short: "deduplicating number log server",
		Long: fmt.Sprintf(`numlog (v%s)

A TCP server that accepts 9-digit numbers from many concurrent clients,
writes every distinct number once to a log file and reports running
statistics. Any client can stop the server with the terminate command.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of numlog",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("numlog v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(client.ClientCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
