package solidity

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"symevm/internal/util"
)

// SourceCodeInfo 指令对应的源码位置
type SourceCodeInfo struct {
	FileName string
	LineNum  int
	Code     string
}

// sourceMapping source map中的一项 s:l:f:j
type sourceMapping struct {
	Offset int
	Length int
	FileID int
	Jump   string
}

type SolidityContract struct {
	*EVMContract
	MethodIdentifiers map[string]string // 函数签名 -> 选择器

	inputFile         string
	source            []byte
	fileID            int
	sourceMap         []sourceMapping
	creationSourceMap []sourceMapping
}

// GetContractsFromFile 编译文件中的所有合约，没有代码的(接口、抽象合约)跳过
func GetContractsFromFile(file string) ([]*SolidityContract, error) {
	output, source, err := compileFile(file)
	if err != nil {
		return nil, err
	}
	return newContractsFromOutput(file, source, output)
}

// NewSolidityContract name为空时取文件中的最后一个合约
func NewSolidityContract(file, name string) (*SolidityContract, error) {
	contracts, err := GetContractsFromFile(file)
	if err != nil {
		return nil, err
	}
	return selectContract(contracts, name)
}

func selectContract(contracts []*SolidityContract, name string) (*SolidityContract, error) {
	if len(contracts) == 0 {
		return nil, errors.New("no contract with code")
	}
	if name == "" {
		return contracts[len(contracts)-1], nil
	}
	for _, c := range contracts {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, errors.Errorf("contract %s not found", name)
}

// newContractsFromOutput 按合约名排序
func newContractsFromOutput(file string, source []byte, output *compilerOutput) ([]*SolidityContract, error) {
	contractsOutput, ok := output.Contracts[file]
	if !ok {
		return nil, errors.Errorf("no output for %s", file)
	}
	names := make([]string, 0, len(contractsOutput))
	for name := range contractsOutput {
		names = append(names, name)
	}
	sort.Strings(names)

	fileID := output.Sources[file].ID
	result := make([]*SolidityContract, 0, len(names))
	for _, name := range names {
		out := contractsOutput[name]
		if out.EVM.DeployedBytecode.Object == "" {
			log.Debugf("skip %s: no code", name)
			continue
		}
		evmContract, err := NewEVMContract(out.EVM.DeployedBytecode.Object, out.EVM.Bytecode.Object, name)
		if err != nil {
			return nil, err
		}
		sourceMap, err := parseSourceMap(out.EVM.DeployedBytecode.SourceMap)
		if err != nil {
			return nil, errors.Wrapf(err, "runtime source map of %s", name)
		}
		creationSourceMap, err := parseSourceMap(out.EVM.Bytecode.SourceMap)
		if err != nil {
			return nil, errors.Wrapf(err, "creation source map of %s", name)
		}
		result = append(result, &SolidityContract{
			EVMContract:       evmContract,
			MethodIdentifiers: out.EVM.MethodIdentifiers,
			inputFile:         file,
			source:            source,
			fileID:            fileID,
			sourceMap:         sourceMap,
			creationSourceMap: creationSourceMap,
		})
	}
	return result, nil
}

// GetSourceInfo address处的指令对应的源码，不在本文件中时返回nil
func (c *SolidityContract) GetSourceInfo(address int, constructor bool) *SourceCodeInfo {
	sourceMap := c.sourceMap
	if constructor {
		sourceMap = c.creationSourceMap
	}
	index := util.GetInstructionIndex(c.Program(!constructor).Instructions(), address)
	if index < 0 || index >= len(sourceMap) {
		return nil
	}
	m := sourceMap[index]
	if m.FileID != c.fileID || m.Offset < 0 || m.Offset+m.Length > len(c.source) {
		return nil
	}
	return &SourceCodeInfo{
		FileName: c.inputFile,
		LineNum:  bytes.Count(c.source[:m.Offset], []byte("\n")) + 1,
		Code:     string(c.source[m.Offset : m.Offset+m.Length]),
	}
}

// FunctionSignature 选择器对应的函数签名
func (c *SolidityContract) FunctionSignature(selector string) (string, bool) {
	selector = strings.TrimPrefix(selector, "0x")
	for signature, id := range c.MethodIdentifiers {
		if id == selector {
			return signature, true
		}
	}
	return "", false
}

// parseSourceMap 压缩格式，空的字段沿用上一项
// https://docs.soliditylang.org/en/latest/internals/source_mappings.html
func parseSourceMap(sourceMap string) ([]sourceMapping, error) {
	if sourceMap == "" {
		return nil, nil
	}
	var (
		items  = strings.Split(sourceMap, ";")
		result = make([]sourceMapping, 0, len(items))
		prev   = sourceMapping{FileID: -1}
	)
	for i, item := range items {
		current := prev
		fields := strings.Split(item, ":")
		for j, field := range fields {
			if field == "" {
				continue
			}
			if j == 3 {
				current.Jump = field
				continue
			}
			if j > 3 {
				break
			}
			value, err := strconv.Atoi(field)
			if err != nil {
				return nil, errors.Errorf("item %d: invalid field %q", i, field)
			}
			switch j {
			case 0:
				current.Offset = value
			case 1:
				current.Length = value
			case 2:
				current.FileID = value
			}
		}
		result = append(result, current)
		prev = current
	}
	return result, nil
}
