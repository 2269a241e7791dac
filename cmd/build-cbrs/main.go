// Command build-cbrs writes per-hand counterfactual best-response
// value files for every subgame root on the given street. The resolver
// can read these instead of recomputing CVs dynamically.
package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lox/egsolver/internal/betting"
	"github.com/lox/egsolver/internal/board"
	"github.com/lox/egsolver/internal/config"
	"github.com/lox/egsolver/internal/paths"
	"github.com/lox/egsolver/internal/resolve"
	"github.com/lox/egsolver/internal/strategy"
)

var cli struct {
	Debug bool `help:"enable debug logging"`

	GameParams string `arg:"" help:"game definition file"`
	CardAbs    string `arg:"" help:"card abstraction file"`
	Betting    string `arg:"" help:"betting abstraction file"`
	CFRConfig  string `arg:"" help:"CFR config file"`
	Street     int    `arg:"" help:"street to write values for"`
	It         int    `arg:"" help:"iteration snapshot to evaluate"`
	CFRs       bool   `help:"write average-response (cfrs) values instead of best-response (cbrs)"`
	OldBase    string `help:"read root for CFR stores (default $CFR_OLD_BASE)"`
	NewBase    string `help:"write root for CFR stores (default $CFR_NEW_BASE)"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("build-cbrs"),
		kong.Description("write counterfactual value files for subgame roots"),
		kong.UsageOnError(),
	)
	logger := setupLogger(cli.Debug)

	sys, err := config.LoadSystem(cli.GameParams, cli.CardAbs, cli.Betting, cli.CFRConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading system")
	}
	roots, err := paths.RootsFromEnv(cli.OldBase, cli.NewBase)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolving store roots")
	}

	tree := betting.Build(sys.Game, sys.BetAbs)
	system := paths.System{
		GameName:   sys.Game.Name,
		NumPlayers: sys.Game.NumPlayers,
		CardAbs:    sys.CardAbs.Name,
		NumRanks:   sys.Game.NumRanks,
		NumSuits:   sys.Game.NumSuits,
		MaxStreet:  sys.Game.MaxStreet,
		BetAbs:     sys.BetAbs.Name,
		CFRConfig:  sys.CFR.Name,
		AsymP:      -1,
	}

	sumprobs := strategy.New(sys.Game, sys.Boards, tree, sys.CardAbs, sys.Buckets, strategy.Params{
		Sumprobs:   true,
		Compressed: sys.CFR.CompressedMask(sys.Game.MaxStreet),
	})
	if err := sumprobs.Read(system.Dir(roots.Old), cli.It, tree.Root(), -1); err != nil {
		logger.Fatal().Err(err).Msg("reading sumprobs")
	}

	handTree := board.NewHandTree(sys.Game, sys.Boards, sys.Eval, 0, 0, sys.Game.MaxStreet)
	dcbr := resolve.NewDynamicCBR(sys.Game, sys.Boards, sys.Eval, sys.CardAbs, sys.Buckets,
		sys.CFR, tree, logger)
	dcbr.MoveSumprobs(sumprobs)

	builder := resolve.NewCVBuilder(sys.Game, sys.Boards, sys.Eval, sys.Buckets, tree,
		sumprobs, dcbr, logger)
	kind := "cbrs"
	if cli.CFRs {
		kind = "cfrs"
	}
	if err := builder.Build(system.Dir(roots.New), kind, cli.Street, cli.It, handTree, cli.CFRs); err != nil {
		logger.Fatal().Err(err).Msg("building CV files")
	}
	log.Info().Str("kind", kind).Int("street", cli.Street).Msg("CV files written")
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
