package solidity

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// compilerOutput standard json输出中用到的部分
type compilerOutput struct {
	Errors    []compilerError                      `json:"errors"`
	Sources   map[string]sourceOutput              `json:"sources"`
	Contracts map[string]map[string]contractOutput `json:"contracts"`
}

type compilerError struct {
	Severity         string `json:"severity"`
	Message          string `json:"message"`
	FormattedMessage string `json:"formattedMessage"`
}

type sourceOutput struct {
	ID int `json:"id"`
}

type contractOutput struct {
	EVM struct {
		Bytecode          bytecodeOutput    `json:"bytecode"`
		DeployedBytecode  bytecodeOutput    `json:"deployedBytecode"`
		MethodIdentifiers map[string]string `json:"methodIdentifiers"`
	} `json:"evm"`
}

type bytecodeOutput struct {
	Object    string `json:"object"`
	SourceMap string `json:"sourceMap"`
}

// decodeOutput 编译器返回的结构各版本不同，统一转成json再解析
func decodeOutput(output interface{}) (*compilerOutput, error) {
	data, err := json.Marshal(output)
	if err != nil {
		return nil, errors.Wrap(err, "Marshal")
	}
	var result compilerOutput
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "Unmarshal")
	}
	return &result, nil
}

// err 编译错误，警告忽略
func (o *compilerOutput) err() error {
	messages := make([]string, 0)
	for _, e := range o.Errors {
		if !strings.EqualFold(e.Severity, "error") {
			continue
		}
		if e.FormattedMessage != "" {
			messages = append(messages, e.FormattedMessage)
		} else {
			messages = append(messages, e.Message)
		}
	}
	if len(messages) == 0 {
		return nil
	}
	return errors.Errorf("compile failed:\n%s", strings.Join(messages, "\n"))
}
