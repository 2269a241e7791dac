// Command run-rgbr computes the real-game best response against a
// trained average strategy and reports the exploitability gap in
// milli-big-blinds per game.
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
	"github.com/lox/egsolver/internal/strategy"
)

var cli struct {
	Debug bool `help:"enable debug logging"`

	GameParams string `arg:"" help:"game definition file"`
	CardAbs    string `arg:"" help:"card abstraction file"`
	Betting    string `arg:"" help:"betting abstraction file"`
	CFRConfig  string `arg:"" help:"CFR config file"`
	It         int    `arg:"" help:"iteration snapshot to evaluate"`
	Threads    int    `help:"worker threads for the flop split" default:"1"`
	OldBase    string `help:"read root for CFR stores (default $CFR_OLD_BASE)"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("run-rgbr"),
		kong.Description("real-game best response of a trained strategy"),
		kong.UsageOnError(),
	)
	logger := setupLogger(cli.Debug)

	sys, err := config.LoadSystem(cli.GameParams, cli.CardAbs, cli.Betting, cli.CFRConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading system")
	}
	oldRoot := cli.OldBase
	if oldRoot == "" {
		oldRoot = os.Getenv(paths.EnvOldBase)
	}
	if oldRoot == "" {
		logger.Fatal().Msgf("no read root: pass --old-base or set %s", paths.EnvOldBase)
	}

	tree := betting.Build(sys.Game, sys.BetAbs)
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
	}.Dir(oldRoot)

	sumprobs := strategy.New(sys.Game, sys.Boards, tree, sys.CardAbs, sys.Buckets, strategy.Params{
		Sumprobs:   true,
		Compressed: sys.CFR.CompressedMask(sys.Game.MaxStreet),
	})
	if err := sumprobs.Read(dir, cli.It, tree.Root(), -1); err != nil {
		logger.Fatal().Err(err).Msg("reading sumprobs")
	}

	engine := cfr.New(sys.Game, sys.Boards, sys.Eval, sys.CardAbs, sys.Buckets, sys.CFR,
		tree, cli.Threads, logger)
	engine.Sumprobs = sumprobs

	p0BR, p1BR := engine.BestResponseValues()
	gap := p0BR + p1BR
	// Half the gap per player, half again per deal position.
	mbbg := ((gap / 2.0) / 2.0) * 1000.0 / float64(sys.Game.BigBlind)
	log.Info().
		Float64("p0_br", p0BR).
		Float64("p1_br", p1BR).
		Float64("gap", gap).
		Float64("exploitability_mbbg", mbbg).
		Msg("best response")
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
