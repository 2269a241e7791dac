// Command cfrp trains a base strategy with vanilla CFR+ over the full
// betting tree and writes the regret and sumprob snapshot for the final
// iteration. The resolver and value builders read these snapshots back.
package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/cfr"
	"github.com/lox/egsolver/internal/config"
	"github.com/lox/egsolver/internal/paths"
)

var cli struct {
	Debug bool `help:"enable debug logging"`

	GameParams  string `arg:"" help:"game definition file"`
	CardAbs     string `arg:"" help:"card abstraction file"`
	Betting     string `arg:"" help:"betting abstraction file"`
	CFRConfig   string `arg:"" help:"CFR config file"`
	Iterations  int    `arg:"" help:"iterations to run"`
	Threads     int    `help:"worker threads for the flop split" default:"1"`
	ReportEvery int    `help:"log progress every N iterations" default:"100"`
	NewBase     string `help:"write root for CFR stores (default $CFR_NEW_BASE)"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("cfrp"),
		kong.Description("train a base strategy with CFR+"),
		kong.UsageOnError(),
	)
	logger := setupLogger(cli.Debug)

	sys, err := config.LoadSystem(cli.GameParams, cli.CardAbs, cli.Betting, cli.CFRConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading system")
	}
	newRoot := cli.NewBase
	if newRoot == "" {
		newRoot = os.Getenv(paths.EnvNewBase)
	}
	if newRoot == "" {
		logger.Fatal().Msgf("no write root: pass --new-base or set %s", paths.EnvNewBase)
	}

	tree := betting.Build(sys.Game, sys.BetAbs)
	// The flop split shares bucket rows across boards, so a bucketed
	// flop trains on one thread.
	threads := cli.Threads
	if sys.Game.MaxStreet >= 1 && !sys.Buckets.None(1) {
		threads = 1
	}
	engine := cfr.New(sys.Game, sys.Boards, sys.Eval, sys.CardAbs, sys.Buckets, sys.CFR,
		tree, threads, logger)
	engine.AllocateTrainingStores()

	for it := 1; it <= cli.Iterations; it++ {
		engine.RunIteration(it)
		if cli.ReportEvery > 0 && it%cli.ReportEvery == 0 {
			logger.Info().Int("it", it).Msg("training")
		}
	}

	dir := paths.System{
		GameName:   sys.Game.Name,
		NumPlayers: sys.Game.NumPlayers,
		CardAbs:    sys.CardAbs.Name,
		NumRanks:   sys.Game.NumRanks,
		NumSuits:   sys.Game.NumSuits,
		MaxStreet:  sys.Game.MaxStreet,
		BetAbs:     sys.BetAbs.Name,
		CFRConfig:  sys.CFR.Name,
		AsymP:      -1,
	}.Dir(newRoot)
	if err := engine.Regrets.Write(dir, cli.Iterations, tree.Root(), -1); err != nil {
		logger.Fatal().Err(err).Msg("writing regrets")
	}
	if err := engine.Sumprobs.Write(dir, cli.Iterations, tree.Root(), -1); err != nil {
		logger.Fatal().Err(err).Msg("writing sumprobs")
	}
	log.Info().Int("iterations", cli.Iterations).Str("dir", dir).Msg("training complete")
}

func setupLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
	log.Logger = logger
	return logger
}
