package main

import (
	"fmt"

	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"symevm/internal/config"
	"symevm/internal/ethereum/state"
	"symevm/internal/issuse"
	"symevm/internal/module"
	"symevm/internal/smt"
	"symevm/internal/solidity"
	"symevm/internal/symevm"
	"symevm/internal/util"
)

var analyzeCommand = &cobra.Command{
	Use:   "analyze",
	Short: "symbolically execute bytecode and check which paths are reachable",
	Long:  ``,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := analyzeExec(cmd); err != nil {
			fmt.Printf("service err: %v\n", err)
		} else {
			fmt.Printf("service quit\n")
		}
	},
}

var (
	analyzeSource codeSource
	configFile    string
	flagConfig    = config.Default()
)

func init() {
	fs := analyzeCommand.Flags()
	analyzeSource.addFlags(fs)
	fs.StringVar(&configFile, "config", "", "yaml config file, flags override it")
	fs.IntVar(&flagConfig.MaxSteps, "max-steps", 0, "max instructions to execute, 0 means no limit")
	fs.StringVar(&flagConfig.Strategy, "strategy", "dfs", "dfs or bfs")
	fs.BoolVar(&flagConfig.Check, "check", true, "check path reachability and run detection modules")
	fs.StringVar(&flagConfig.Calldata, "calldata", "", "concrete calldata in hex, symbolic if empty")
	fs.StringVar(&flagConfig.Caller, "caller", "", "caller address or CREATOR/ATTACKER/SOMEGUY, symbolic if empty")
	fs.StringVar(&flagConfig.Origin, "origin", "", "origin address, symbolic if empty")
	fs.StringVar(&flagConfig.CallValue, "callvalue", "", "concrete call value, symbolic if empty")
	fs.StringSliceVar(&flagConfig.RestrictSelectors, "restrict", nil, "only check paths whose calldata starts with one of these selectors")
	fs.StringSliceVar(&flagConfig.Modules, "modules", nil, "detection modules to run, default all")
	fs.StringVar(&flagConfig.SolcDir, "solc-dir", "solc_binary", "solc binary cache")
	fs.StringVar(&flagConfig.LogLevel, "log-level", "info", "trace|debug|info|warn|error")
}

// loadConfig yaml文件打底，命令行中设置过的参数覆盖
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c := config.Default()
	if configFile != "" {
		var err error
		if c, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}
	fs := cmd.Flags()
	overrides := []struct {
		flag  string
		apply func()
	}{
		{"max-steps", func() { c.MaxSteps = flagConfig.MaxSteps }},
		{"strategy", func() { c.Strategy = flagConfig.Strategy }},
		{"check", func() { c.Check = flagConfig.Check }},
		{"calldata", func() { c.Calldata = flagConfig.Calldata }},
		{"caller", func() { c.Caller = flagConfig.Caller }},
		{"origin", func() { c.Origin = flagConfig.Origin }},
		{"callvalue", func() { c.CallValue = flagConfig.CallValue }},
		{"restrict", func() { c.RestrictSelectors = flagConfig.RestrictSelectors }},
		{"modules", func() { c.Modules = flagConfig.Modules }},
		{"solc-dir", func() { c.SolcDir = flagConfig.SolcDir }},
		{"log-level", func() { c.LogLevel = flagConfig.LogLevel }},
	}
	for _, o := range overrides {
		if fs.Changed(o.flag) {
			o.apply()
		}
	}
	return c, c.Validate()
}

func analyzeExec(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ApplyLogging(); err != nil {
		return err
	}
	solidity.SolcBinaryDir = cfg.SolcDir

	yices2.Init()
	defer yices2.Exit()

	program, contract, err := analyzeSource.load()
	if err != nil {
		return err
	}
	if codeHash, _, err := util.GetCodeHash(program.GetBytecode()); err == nil {
		fmt.Printf("code hash: 0x%s, size %d\n", codeHash, program.Size())
	}

	ctx := smt.NewContext()
	defer ctx.Close()
	env := state.NewEnvironment(ctx)
	if err := cfg.ApplyEnvironment(env); err != nil {
		return err
	}
	opts, err := cfg.Options(env)
	if err != nil {
		return err
	}

	if !cfg.Check {
		executor := symevm.NewExecutor(ctx, program, env, opts...)
		tree, err := executor.Run()
		if err != nil {
			return err
		}
		fmt.Printf("nodes %d, leaves %d, steps %d, truncated %v\n",
			tree.Len(), len(tree.Leaves()), executor.Steps(), executor.Truncated())
		for _, path := range tree.FindPaths() {
			fmt.Printf("path %s: leaf %s at pc %d\n", path, path.LeafOp(), path.LeafAddress())
		}
		return nil
	}

	tree, report, err := symevm.Analyze(ctx, program, env, opts...)
	if err != nil {
		return err
	}
	fmt.Print(report.String())

	issuses, err := detect(cfg, &module.Target{
		Ctx:     ctx,
		Env:     env,
		Program: program,
		Tree:    tree,
		Report:  report,
	})
	if err != nil {
		return err
	}
	if len(issuses) == 0 {
		fmt.Println("no issues found")
		return nil
	}
	for _, is := range issuses {
		if contract != nil {
			is.AddCodeInfo(contract, !analyzeSource.runtime)
		}
		fmt.Println(is.String())
	}
	return nil
}

func detect(cfg *config.Config, target *module.Target) ([]*issuse.Issuse, error) {
	modules, err := module.NewModules(cfg.Modules)
	if err != nil {
		return nil, err
	}
	target.Assumptions, err = cfg.Assumptions(target.Env)
	if err != nil {
		return nil, err
	}
	moduleManager := module.NewModuleManager()
	for _, dm := range modules {
		moduleManager.AddModule(dm)
	}
	issuses, err := moduleManager.Run(target)
	return issuses, errors.Wrap(err, "detect")
}
