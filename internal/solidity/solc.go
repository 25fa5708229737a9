package solidity

import (
	"os"
	"regexp"
	"strings"

	"github.com/Notation/solc-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// 旧版本的编译器接口不统一
// 低于0.5.0使用compileJSON
// 0.5.0到0.6.0之间使用solidity_compile('string', 'number')
// 0.6.0及以上使用solidity_compile('string', 'number', 'number')

// 编译器输入输出的格式:
// https://docs.soliditylang.org/en/v0.5.0/using-the-compiler.html#compiler-input-and-output-json-description

const (
	SolcBinaryMetaFile = "list.json"
	SolcBinaryEndpoint = "https://raw.githubusercontent.com/ethereum/solc-bin/gh-pages/wasm/"
)

// SolcBinaryDir 编译器的本地缓存目录，可以通过配置的solc_dir修改
var SolcBinaryDir = "solc_binary"

var regVersion = regexp.MustCompile(`\d+\.\d+\.\d+`)

func PrepareSolcBinary(version string) (string, error) {
	solcMeta, err := NewSolcBinaryMeta()
	if err != nil {
		return "", errors.Wrap(err, "NewSolcBinaryMeta")
	}
	solcFile, err := solcMeta.GetSolcBinary(version)
	if err != nil {
		return "", errors.Wrap(err, "GetSolcBinary")
	}
	return solcFile, nil
}

// standardInput 只需要字节码、source map和函数选择器，源文件的id从sources中取
func standardInput(file string, content []byte) *solc.Input {
	return &solc.Input{
		Language: "Solidity",
		Sources:  map[string]solc.SourceIn{file: {Content: string(content)}},
		Settings: solc.Settings{
			Optimizer: solc.Optimizer{Enabled: false},
			OutputSelection: map[string]map[string][]string{
				"*": {
					"*": {"evm.bytecode", "evm.deployedBytecode", "evm.methodIdentifiers"},
					"":  {"ast"},
				},
			},
		},
	}
}

// compileFile 用pragma中的版本编译单个文件，同时返回文件内容
func compileFile(file string) (*compilerOutput, []byte, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, errors.Wrap(err, "ReadFile")
	}
	version, err := ExtractVersionFromData(content)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "solc version of %s", file)
	}
	solcFile, err := PrepareSolcBinary(version)
	if err != nil {
		return nil, nil, errors.Wrap(err, "PrepareSolcBinary")
	}
	log.Infof("compile %s with solc %s", file, version)
	compiler, err := solc.NewFromFile(solcFile, version)
	if err != nil {
		return nil, nil, errors.Wrap(err, "NewFromFile")
	}
	output, err := compiler.Compile(standardInput(file, content))
	if err != nil {
		return nil, nil, errors.Wrap(err, "Compile")
	}
	result, err := decodeOutput(output)
	if err != nil {
		return nil, nil, err
	}
	return result, content, result.err()
}

const PragmaSolidity = "pragma solidity "

// ExtractVersionFromData 提取pragma中的第一个版本号，^0.8.17和>=0.8.17 <0.9.0都得到0.8.17
func ExtractVersionFromData(fileData []byte) (string, error) {
	lines := strings.Split(string(fileData), "\n")
	for i := range lines {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, PragmaSolidity) {
			continue
		}
		version := regVersion.FindString(line)
		if version == "" {
			return "", errors.Errorf("no version in %q", line)
		}
		return version, nil
	}
	return "", errors.New("no pragma solidity")
}
