package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverFlag string

var rootCmd = &cobra.Command{
	Use:   "runbox",
	Short: "Runbox - sandboxed interactive code execution",
	Long: `Runbox compiles submitted source code and runs it interactively inside
an isolated sandbox, streaming stdin/stdout over a WebSocket.

Start the server with "runbox serve", then point an editor at it or use
"runbox run" to compile and run files from the command line.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "http://localhost:8080", "Runbox server base URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
