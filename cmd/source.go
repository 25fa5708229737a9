package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"symevm/internal/disassembler"
	"symevm/internal/solidity"
)

// codeSource 待分析的代码，三种来源选一种
type codeSource struct {
	code     string
	codeFile string
	sol      string
	contract string
	runtime  bool
}

func (s *codeSource) addFlags(fs *flag.FlagSet) {
	fs.StringVar(&s.code, "code", "", "hex bytecode")
	fs.StringVar(&s.codeFile, "code-file", "", "file containing hex bytecode")
	fs.StringVar(&s.sol, "sol", "", "solidity file, compiled with solc")
	fs.StringVar(&s.contract, "contract", "", "contract name in the solidity file, default the last one")
	fs.BoolVar(&s.runtime, "runtime", false, "use the runtime code of the solidity contract instead of the creation code")
}

// load 需要在yices2.Init之后调用，contract只在--sol时非空
func (s *codeSource) load() (*disassembler.Program, *solidity.SolidityContract, error) {
	count := 0
	for _, v := range []string{s.code, s.codeFile, s.sol} {
		if v != "" {
			count++
		}
	}
	if count != 1 {
		return nil, nil, errors.New("exactly one of --code, --code-file, --sol is required")
	}

	switch {
	case s.code != "":
		program, err := disassembler.NewProgram(s.code)
		return program, nil, err
	case s.codeFile != "":
		data, err := os.ReadFile(s.codeFile)
		if err != nil {
			return nil, nil, errors.Wrap(err, "ReadFile")
		}
		program, err := disassembler.NewProgram(strings.TrimSpace(string(data)))
		return program, nil, err
	}
	contract, err := solidity.NewSolidityContract(s.sol, s.contract)
	if err != nil {
		return nil, nil, errors.Wrap(err, "NewSolidityContract")
	}
	return contract.Program(s.runtime), contract, nil
}
