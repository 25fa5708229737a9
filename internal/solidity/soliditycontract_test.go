package solidity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ownedFile = "owned.sol"

const ownedSource = `pragma solidity ^0.8.0;

interface IOwned {
    function kill() external;
}

contract Owned {
    address owner;
    function kill() public {
        require(msg.sender == owner);
        selfdestruct(payable(owner));
    }
}
`

// ownedOutput 按源码位置手工构造的编译输出
func ownedOutput() *compilerOutput {
	var (
		contractOffset = strings.Index(ownedSource, "contract Owned")
		contractLength = len(ownedSource) - 1 - contractOffset
		requireOffset  = strings.Index(ownedSource, "require(")
		requireLength  = len("require(msg.sender == owner)")
		killOffset     = strings.Index(ownedSource, "selfdestruct(")
		killLength     = len("selfdestruct(payable(owner))")
	)
	output := &compilerOutput{
		Sources:   map[string]sourceOutput{ownedFile: {ID: 0}},
		Contracts: map[string]map[string]contractOutput{ownedFile: {}},
	}
	var owned contractOutput
	// PUSH1 PUSH1 MSTORE PUSH1 DUP1 REVERT
	owned.EVM.DeployedBytecode = bytecodeOutput{
		Object: "6080604052600080fd",
		SourceMap: fmt.Sprintf("%d:%d:0:-:0;;;%d:%d:0;;%d:%d:0:o",
			contractOffset, contractLength, requireOffset, requireLength, killOffset, killLength),
	}
	// PUSH1 PUSH1 MSTORE
	owned.EVM.Bytecode = bytecodeOutput{
		Object:    "6080604052",
		SourceMap: fmt.Sprintf("%d:%d:0;;5:3:1", contractOffset, contractLength),
	}
	owned.EVM.MethodIdentifiers = map[string]string{"kill()": "41c0e1b5"}
	output.Contracts[ownedFile]["Owned"] = owned
	output.Contracts[ownedFile]["IOwned"] = contractOutput{}
	return output
}

func Test_getSourceInfo(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	contracts, err := newContractsFromOutput(ownedFile, []byte(ownedSource), ownedOutput())
	require.Nil(t, err)
	// 接口没有代码
	require.Equal(t, 1, len(contracts))
	contract := contracts[0]
	assert.Equal(t, "Owned", contract.Name)
	assert.Equal(t, ownedFile, contract.inputFile, "inputFile missmatch")

	var testCases = []struct {
		Address     int
		Constructor bool
		LineNum     int
		Code        string
	}{
		{5, false, 10, "require(msg.sender == owner)"},
		{6, false, 10, "require(msg.sender == owner)"},
		{8, false, 11, "selfdestruct(payable(owner))"},
		{0, false, 7, ""},
		{2, true, 7, ""},
		{4, true, 0, ""},
		{100, false, 0, ""},
	}
	for _, tc := range testCases {
		codeInfo := contract.GetSourceInfo(tc.Address, tc.Constructor)
		if tc.LineNum == 0 {
			assert.Nil(t, codeInfo, "address %d", tc.Address)
			continue
		}
		require.NotNil(t, codeInfo, "address %d", tc.Address)
		assert.Equal(t, ownedFile, codeInfo.FileName)
		assert.Equal(t, tc.LineNum, codeInfo.LineNum, "wrong linenum")
		if tc.Code != "" {
			assert.Equal(t, tc.Code, codeInfo.Code, "source code not equal")
		} else {
			assert.True(t, strings.HasPrefix(codeInfo.Code, "contract Owned"))
		}
	}

	signature, ok := contract.FunctionSignature("0x41c0e1b5")
	assert.True(t, ok)
	assert.Equal(t, "kill()", signature)
	_, ok = contract.FunctionSignature("0x00000000")
	assert.False(t, ok)
}

func Test_selectContract(t *testing.T) {
	yices2.Init()
	defer yices2.Exit()

	contracts, err := newContractsFromOutput(ownedFile, []byte(ownedSource), ownedOutput())
	require.Nil(t, err)

	contract, err := selectContract(contracts, "")
	assert.Nil(t, err)
	assert.Equal(t, "Owned", contract.Name)
	contract, err = selectContract(contracts, "Owned")
	assert.Nil(t, err)
	assert.Equal(t, 6, len(contract.Program(true).Instructions()))
	assert.Equal(t, 3, len(contract.Program(false).Instructions()))

	_, err = selectContract(contracts, "IOwned")
	assert.NotNil(t, err)
	_, err = selectContract(nil, "")
	assert.NotNil(t, err)

	_, err = newContractsFromOutput("other.sol", []byte(ownedSource), ownedOutput())
	assert.NotNil(t, err)
}

func Test_parseSourceMap(t *testing.T) {
	result, err := parseSourceMap("1:2:0:-:0;;3::1:i;:4")
	require.Nil(t, err)
	assert.Equal(t, []sourceMapping{
		{1, 2, 0, "-"},
		{1, 2, 0, "-"},
		{3, 2, 1, "i"},
		{3, 4, 1, "i"},
	}, result)

	result, err = parseSourceMap("")
	assert.Nil(t, err)
	assert.Equal(t, 0, len(result))

	_, err = parseSourceMap("1:2;a:1")
	assert.NotNil(t, err)
}

func Test_decodeOutput(t *testing.T) {
	raw := map[string]interface{}{
		"errors": []map[string]string{
			{"severity": "warning", "formattedMessage": "unused variable"},
		},
		"sources": map[string]interface{}{
			ownedFile: map[string]int{"id": 3},
		},
		"contracts": map[string]interface{}{
			ownedFile: map[string]interface{}{
				"Owned": map[string]interface{}{
					"evm": map[string]interface{}{
						"deployedBytecode":  map[string]string{"object": "00", "sourceMap": "0:1:3"},
						"methodIdentifiers": map[string]string{"kill()": "41c0e1b5"},
					},
				},
			},
		},
	}
	output, err := decodeOutput(raw)
	require.Nil(t, err)
	assert.Nil(t, output.err())
	assert.Equal(t, 3, output.Sources[ownedFile].ID)
	owned := output.Contracts[ownedFile]["Owned"]
	assert.Equal(t, "00", owned.EVM.DeployedBytecode.Object)
	assert.Equal(t, "41c0e1b5", owned.EVM.MethodIdentifiers["kill()"])

	output.Errors = append(output.Errors, compilerError{Severity: "error", Message: "ParserError"})
	err = output.err()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "ParserError")
}

func Test_ExtractVersionFromData(t *testing.T) {
	var testCases = []struct {
		Source   string
		Expected string
	}{
		{"pragma solidity ^0.8.17;\ncontract A {}", "0.8.17"},
		{"// SPDX-License-Identifier: MIT\npragma solidity >=0.7.0 <0.9.0;", "0.7.0"},
		{"  pragma solidity 0.4.24;", "0.4.24"},
	}
	for _, tc := range testCases {
		version, err := ExtractVersionFromData([]byte(tc.Source))
		assert.Nil(t, err)
		assert.Equal(t, tc.Expected, version)
	}
	_, err := ExtractVersionFromData([]byte("contract A {}"))
	assert.NotNil(t, err)
}

func Test_findBuild(t *testing.T) {
	meta := &SolcBinaryMeta{Builds: []SolcBinaryVersionInfo{
		{Path: "soljson-v0.8.18-nightly.2022.11.23+commit.eb2f874e.js", Version: "0.8.18"},
		{Path: "soljson-v0.8.17+commit.8df45f5f.js", Version: "0.8.17"},
		{Path: "soljson-v0.8.1+commit.df193b15.js", Version: "0.8.1"},
	}}
	var testCases = []struct {
		Version  string
		Expected string
	}{
		{"0.8.1", "soljson-v0.8.1+commit.df193b15.js"},
		{"^0.8.17", "soljson-v0.8.17+commit.8df45f5f.js"},
		{"0.8.18", ""},
		{"0.9.0", ""},
	}
	for _, tc := range testCases {
		build, ok := meta.findBuild(tc.Version)
		require.Equal(t, tc.Expected != "", ok, tc.Version)
		if ok {
			assert.Equal(t, tc.Expected, build.Path)
		}
	}
}

func Test_verify(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "soljson.js")
	require.Nil(t, os.WriteFile(filePath, []byte{}, 0o644))

	// 空文件的keccak256
	info := &SolcBinaryVersionInfo{Path: "soljson.js", Keccak256: "0xC5D2460186F7233C927E7DB2DCC703C0E500B653CA82273B7BFAD8045D85A470"}
	assert.Nil(t, info.verify(filePath))
	info.Keccak256 = "0x00"
	assert.NotNil(t, info.verify(filePath))
	info.Keccak256 = ""
	assert.Nil(t, info.verify(filePath))

	_, err := readSolcMeta(filepath.Join(t.TempDir(), "list.json"))
	assert.NotNil(t, err)
}

func Test_standardInput(t *testing.T) {
	input := standardInput(ownedFile, []byte(ownedSource))
	assert.Equal(t, "Solidity", input.Language)
	assert.Equal(t, ownedSource, input.Sources[ownedFile].Content)
	assert.Contains(t, input.Settings.OutputSelection["*"]["*"], "evm.deployedBytecode")
	assert.False(t, input.Settings.Optimizer.Enabled)
}
