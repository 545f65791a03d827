package main

import (
	"github.com/spf13/pflag"

	"github.com/tailored-agentic-units/llamachat/kernel"
)

// options holds command-line values. Flags the operator did not set
// leave the file and environment configuration untouched.
type options struct {
	configFile string
	envFile    string

	engineURL     string
	vision        bool
	template      string
	systemPrompt  string
	manual        bool
	displayPrompt bool
	special       bool
	plain         bool
	batchSize     int
	snapshots     string
	observer      string
	verbose       bool

	temperature   float64
	topK          int
	topP          float64
	minP          float64
	repeatPenalty float64
	repeatLastN   int
	seed          uint32
}

func (o *options) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configFile, "config", "c", "", "config file (JSON with comments, or YAML)")
	fs.StringVar(&o.envFile, "env", "", "environment file to load instead of .env")

	fs.StringVarP(&o.engineURL, "engine", "e", "", "inference engine base URL (env "+kernel.EnvEngineURL+")")
	fs.BoolVar(&o.vision, "vision", false, "fail unless the engine can embed images")
	fs.StringVar(&o.template, "chat-template", "", "chat format name or inline template (default: the model's own)")
	fs.StringVarP(&o.systemPrompt, "system-prompt", "p", "", "system prompt (env "+kernel.EnvSystemPrompt+")")
	fs.BoolVar(&o.manual, "manual", false, "start in manual role mode")
	fs.BoolVar(&o.displayPrompt, "display-prompt", false, "print the system prompt after loading it")
	fs.BoolVar(&o.special, "special", false, "show control tokens in output")
	fs.BoolVar(&o.plain, "nocolor", false, "disable markdown highlighting")
	fs.IntVarP(&o.batchSize, "batch-size", "b", 0, "maximum tokens per engine decode call")
	fs.StringVar(&o.snapshots, "snapshots", "", "directory for /dump and /load snapshots (default: in memory)")
	fs.StringVar(&o.observer, "observer", "", "event observer: noop or slog")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log session events to stderr")

	fs.Float64Var(&o.temperature, "temp", 0, "sampling temperature; 0 is greedy")
	fs.IntVar(&o.topK, "top-k", 0, "top-k sampling")
	fs.Float64Var(&o.topP, "top-p", 0, "top-p sampling")
	fs.Float64Var(&o.minP, "min-p", 0, "min-p sampling")
	fs.Float64Var(&o.repeatPenalty, "repeat-penalty", 0, "penalty for repeated tokens")
	fs.IntVar(&o.repeatLastN, "repeat-last-n", 0, "tokens considered for the repeat penalty")
	fs.Uint32VarP(&o.seed, "seed", "s", 0, "sampler seed")
}

// config resolves the effective configuration: defaults, then the
// config file, then the environment, then flags.
func (o *options) config(fs *pflag.FlagSet) (*kernel.Config, error) {
	cfg := kernel.DefaultConfig()
	if o.configFile != "" {
		loaded, err := kernel.LoadConfig(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	cfg.ApplyEnv()

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("engine", func() { cfg.Engine.URL = o.engineURL })
	set("vision", func() { cfg.Engine.Vision = o.vision })
	set("chat-template", func() { cfg.Template.Name = o.template })
	set("system-prompt", func() { cfg.Session.SystemPrompt = o.systemPrompt })
	set("manual", func() { cfg.Session.Manual = o.manual })
	set("display-prompt", func() { cfg.Session.DisplayPrompt = o.displayPrompt })
	set("special", func() { cfg.Session.Special = o.special })
	set("nocolor", func() { cfg.Session.Plain = o.plain })
	set("batch-size", func() { cfg.Window.BatchSize = o.batchSize })
	set("snapshots", func() { cfg.Memory.Path = o.snapshots })
	set("observer", func() { cfg.Observer = o.observer })
	set("verbose", func() { cfg.Verbose = o.verbose })

	set("temp", func() { cfg.Sampling.Temperature = o.temperature })
	set("top-k", func() { cfg.Sampling.TopK = o.topK })
	set("top-p", func() { cfg.Sampling.TopP = o.topP })
	set("min-p", func() { cfg.Sampling.MinP = o.minP })
	set("repeat-penalty", func() { cfg.Sampling.RepeatPenalty = o.repeatPenalty })
	set("repeat-last-n", func() { cfg.Sampling.RepeatLastN = o.repeatLastN })
	set("seed", func() { cfg.Sampling.Seed = o.seed })

	return &cfg, nil
}
