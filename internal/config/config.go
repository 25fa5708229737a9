// Package config 分析的配置，来自yaml文件和命令行参数
package config

import (
	"bytes"
	"math/big"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"symevm/internal/ethereum/state"
	"symevm/internal/smt"
	"symevm/internal/strategy"
	"symevm/internal/symevm"
	"symevm/internal/util"
)

type Config struct {
	Caller    string            `yaml:"caller"`    // 地址或者CREATOR/ATTACKER/SOMEGUY，为空时是符号值
	Origin    string            `yaml:"origin"`    // 同caller
	Address   string            `yaml:"address"`   // 被分析合约的地址
	Calldata  string            `yaml:"calldata"`  // 16进制，为空时是符号值
	CallValue string            `yaml:"callvalue"` // 10进制或0x开头的16进制
	Balances  map[string]string `yaml:"balances"`  // 地址 -> 余额

	MaxSteps          int      `yaml:"max_steps"` // 0不限制
	Strategy          string   `yaml:"strategy"`  // dfs或bfs
	Check             bool     `yaml:"check"`     // 是否检查路径可达
	RestrictSelectors []string `yaml:"restrict_selectors"`
	Modules           []string `yaml:"modules"` // 为空时使用全部检测模块

	SolcDir  string `yaml:"solc_dir"`
	LogLevel string `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		Strategy: "dfs",
		Check:    true,
		SolcDir:  "solc_binary",
		LogLevel: "info",
	}
}

// Load 文件中没有的字段保持默认值，未知字段报错
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "ReadFile")
	}
	c := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.MaxSteps < 0 {
		return errors.Errorf("max_steps %d < 0", c.MaxSteps)
	}
	if _, err := strategy.New(c.Strategy); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	return nil
}

// ApplyLogging 设置logrus的级别和格式
func (c *Config) ApplyLogging() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrap(err, "log_level")
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)
	return nil
}

// ApplyEnvironment 把配置中的具体值绑定到env上，没有配置的保持符号值
func (c *Config) ApplyEnvironment(env *state.Environment) error {
	if c.Address != "" {
		address, err := state.ResolveActor(c.Address)
		if err != nil {
			return errors.Wrap(err, "address")
		}
		env.SetAddress(address)
	}
	if c.Caller != "" {
		caller, err := state.ResolveActor(c.Caller)
		if err != nil {
			return errors.Wrap(err, "caller")
		}
		env.SetCaller(caller)
	}
	if c.Origin != "" {
		origin, err := state.ResolveActor(c.Origin)
		if err != nil {
			return errors.Wrap(err, "origin")
		}
		env.SetOrigin(origin)
	}
	if c.Calldata != "" {
		if err := env.SetCalldata(c.Calldata); err != nil {
			return err
		}
	}
	if c.CallValue != "" {
		value, err := ParseValue(c.CallValue)
		if err != nil {
			return errors.Wrap(err, "callvalue")
		}
		env.SetCallValue(value)
	}
	for account, balance := range c.Balances {
		address, err := state.ResolveActor(account)
		if err != nil {
			return errors.Wrap(err, "balances")
		}
		value, err := ParseValue(balance)
		if err != nil {
			return errors.Wrapf(err, "balance of %s", account)
		}
		env.SetBalance(address, value)
	}
	return nil
}

// Options 执行和检查的选项，restrict_selectors作为检查时的前提条件
func (c *Config) Options(env *state.Environment) ([]symevm.Option, error) {
	st, err := strategy.New(c.Strategy)
	if err != nil {
		return nil, err
	}
	opts := []symevm.Option{
		symevm.WithMaxSteps(c.MaxSteps),
		symevm.WithStrategy(st),
	}
	assumptions, err := c.Assumptions(env)
	if err != nil {
		return nil, err
	}
	if len(assumptions) > 0 {
		opts = append(opts, symevm.WithAssumptions(assumptions...))
	}
	return opts, nil
}

func (c *Config) Assumptions(env *state.Environment) ([]*smt.Bool, error) {
	restrict, err := state.FunctionConstraints(env, selectors(c.RestrictSelectors))
	if err != nil {
		return nil, errors.Wrap(err, "restrict_selectors")
	}
	if restrict == nil {
		return nil, nil
	}
	return []*smt.Bool{restrict}, nil
}

// selectors 函数签名转换成选择器，例如transfer(address,uint256)
func selectors(items []string) []string {
	result := make([]string, len(items))
	for i, item := range items {
		if strings.Contains(item, "(") {
			result[i] = util.FunctionSelector(strings.ReplaceAll(item, " ", ""))
			continue
		}
		result[i] = item
	}
	return result
}

// ParseValue 10进制或0x开头的16进制，不能超过256bit
func ParseValue(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	b, ok := new(big.Int).SetString(s, 0)
	if !ok || b.Sign() < 0 {
		return nil, errors.Errorf("invalid value %q", s)
	}
	value, overflow := uint256.FromBig(b)
	if overflow {
		return nil, errors.Errorf("value %q overflows 256 bits", s)
	}
	return value, nil
}
