package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "symevm",
	Short: "symbolic execution engine for evm bytecode",
	Long: `symevm builds the state tree of a contract from pc 0, checks every path with yices
and reports the reachable ones together with the issues found on them.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(versionCommand, analyzeCommand, disassembleCommand)
}

func main() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
