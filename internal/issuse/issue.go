package issuse

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"symevm/internal/solidity"
)

type Issuse struct {
	ID          string
	Title       string
	Description string
	Severity    string

	Address  int
	Function string              // 所在的函数，分发表中找不到时为空
	Witness  map[string]*big.Int // 触发问题的一组输入

	File string
	Line int
	Code string
}

// Key 同一个位置的同一种问题只报告一次
func (is *Issuse) Key() string {
	return fmt.Sprintf("%s@%d", is.ID, is.Address)
}

func (is *Issuse) AddCodeInfo(contract *solidity.SolidityContract, constructor bool) {
	codeInfo := contract.GetSourceInfo(is.Address, constructor)
	if codeInfo == nil {
		is.File = "Internal file"
		return
	}
	is.File = codeInfo.FileName
	is.Line = codeInfo.LineNum
	is.Code = codeInfo.Code
}

func (is *Issuse) String() string {
	swcDescription := fmt.Sprintf("ID: %s\nTitle: %s\nSeverity: %s\nDescription: %s\n\n",
		is.ID, is.Title, is.Severity, is.Description)
	swcDescription = Colour(31, swcDescription)

	location := fmt.Sprintf("At address: %d", is.Address)
	if is.Function != "" {
		location += fmt.Sprintf(" in %s", is.Function)
	}
	location += "\n"
	if is.File != "" {
		location += fmt.Sprintf("In file: %s:%d\n%s\n", is.File, is.Line, is.Code)
	}
	location = Colour(33, location)

	return fmt.Sprintf("%s%s%s", swcDescription, location, is.witness())
}

func (is *Issuse) witness() string {
	if len(is.Witness) == 0 {
		return ""
	}
	names := make([]string, 0, len(is.Witness))
	for name := range is.Witness {
		names = append(names, name)
	}
	sort.Strings(names)
	var builder strings.Builder
	builder.WriteString("Witness:\n")
	for _, name := range names {
		fmt.Fprintf(&builder, "  %s = 0x%x\n", name, is.Witness[name])
	}
	return builder.String()
}

func Colour(color int, str string) string {
	return fmt.Sprintf("\033[%dm%s\033[0m", color, str)
}
