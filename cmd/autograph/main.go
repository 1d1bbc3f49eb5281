// The autograph command compiles and executes visual workflow graphs.
//
// Usage:
//
//	autograph serve  [--addr :8080] [--flows-dir flows] [--store DSN]
//	autograph compile FLOW
//	autograph run FLOW [--input JSON] [--backend cpu|gpu|auto]
//	autograph kinds
//
// Flow documents are JSON or YAML. Logging is configured from LOG_LEVEL
// (DEBUG, INFO, WARN, ERROR) and LOG_FORMAT (json, text).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "autograph",
		Short:         "autograph is a visual workflow compiler and execution engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newCompileCmd(),
		newRunCmd(),
		newKindsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
