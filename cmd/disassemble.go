package main

import (
	"fmt"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/spf13/cobra"

	"symevm/internal/solidity"
)

var disassembleCommand = &cobra.Command{
	Use:   "disassemble",
	Short: "disassemble bytecode and print easm",
	Long:  ``,
	Run: func(*cobra.Command, []string) {
		if err := disassemble(); err != nil {
			fmt.Printf("service err: %v\n", err)
		} else {
			fmt.Printf("service quit\n")
		}
	},
}

var (
	disassembleSource codeSource
	solcDir           string
)

func init() {
	disassembleSource.addFlags(disassembleCommand.Flags())
	disassembleCommand.Flags().StringVar(&solcDir, "solc-dir", "solc_binary", "solc binary cache")
}

func disassemble() error {
	solidity.SolcBinaryDir = solcDir
	yices2.Init()
	defer yices2.Exit()

	program, contract, err := disassembleSource.load()
	if err != nil {
		return err
	}
	if contract == nil {
		fmt.Println(program.GetEASM())
	} else {
		fmt.Println("Disassembled runtime code:")
		fmt.Println(contract.GetEASM())
		fmt.Println("Disassembled creation code:")
		fmt.Println(contract.GetCreationEASM())
	}

	fmt.Println("Function selectors:")
	for _, funcHash := range program.FunctionHashes() {
		name := ""
		if contract != nil {
			name, _ = contract.FunctionSignature(funcHash)
		}
		fmt.Printf("  %s %s\n", funcHash, name)
	}
	return nil
}
