// Command solve-endgames re-solves every reachable subgame rooted on
// the given street, using the trunk reach probabilities and opponent
// counterfactual values derived from the base strategy as boundary
// conditions.
package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lox/egsolver/internal/config"
	"github.com/lox/egsolver/internal/paths"
	"github.com/lox/egsolver/internal/resolve"
)

var cli struct {
	Debug bool `help:"enable debug logging"`

	GameParams      string `arg:"" help:"game definition file"`
	BaseCardAbs     string `arg:"" help:"base card abstraction file"`
	EndgameCardAbs  string `arg:"" help:"endgame card abstraction file"`
	BaseBetting     string `arg:"" help:"base betting abstraction file"`
	EndgameBetting  string `arg:"" help:"endgame betting abstraction file"`
	BaseCFRConfig   string `arg:"" help:"base CFR config file"`
	EndgameCFR      string `arg:"" help:"endgame CFR config file"`
	SolveStreet     int    `arg:"" help:"street subgames are rooted on"`
	BaseIt          int    `arg:"" help:"base strategy iteration to read"`
	NumEndgameIts   int    `arg:"" help:"subgame CFR iterations"`
	Method          string `help:"resolving method" enum:"unsafe,cfrd,maxmargin,combined" default:"unsafe"`
	CFRs            bool   `help:"seed with average-response values instead of best-response"`
	ZeroSum         bool   `help:"zero-sum adjust the seed CVs" default:"true" negatable:""`
	Current         bool   `help:"seed CVs against the current strategy (regrets) instead of the average"`
	PureStreets     string `help:"comma-separated streets whose reach probs are purified"`
	BaseDisk        bool   `help:"re-read the base endgame strategy per subgame instead of holding it in memory"`
	CVFiles         bool   `help:"read seed CVs from build-cbrs output instead of computing them"`
	CVKind          string `help:"CV file kind when --cv-files is set" enum:"cbrs,cfrs" default:"cbrs"`
	Nested          bool   `help:"continue resolving inside freshly solved subgames (unsafe method only)"`
	Progressive     bool   `help:"endgame bet sizes at the subgame root only; base sizes below"`
	Internal        bool   `help:"also resolve at interior no-bet-pending nodes (stress testing)"`
	Threads         int    `help:"worker threads for the trunk walk" default:"1"`
	OldBase         string `help:"read root for CFR stores (default $CFR_OLD_BASE)"`
	NewBase         string `help:"write root for CFR stores (default $CFR_NEW_BASE)"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("solve-endgames"),
		kong.Description("re-solve endgames against a base CFR strategy"),
		kong.UsageOnError(),
	)
	logger := setupLogger(cli.Debug)

	base, err := config.LoadSystem(cli.GameParams, cli.BaseCardAbs, cli.BaseBetting, cli.BaseCFRConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading base system")
	}
	endgame, err := base.Sibling(cli.EndgameCardAbs, cli.EndgameBetting, cli.EndgameCFR)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading endgame system")
	}
	roots, err := paths.RootsFromEnv(cli.OldBase, cli.NewBase)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolving store roots")
	}
	method, err := resolve.ParseMethod(cli.Method)
	if err != nil {
		logger.Fatal().Err(err).Msg("parsing method")
	}
	pure := make([]bool, base.Game.MaxStreet+1)
	if cli.PureStreets != "" {
		for _, f := range strings.Split(cli.PureStreets, ",") {
			st, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil || st < 0 || st > base.Game.MaxStreet {
				logger.Fatal().Str("street", f).Msg("bad pure street")
			}
			pure[st] = true
		}
	}

	solver, err := resolve.NewSolver(base.Game, base.Boards, base.Eval,
		base.CardAbs, endgame.CardAbs, base.Buckets, endgame.Buckets,
		base.BetAbs, endgame.BetAbs, base.CFR, endgame.CFR,
		roots, resolve.Options{
			SolveStreet:   cli.SolveStreet,
			Method:        method,
			CFRs:          cli.CFRs,
			ZeroSum:       cli.ZeroSum,
			Current:       cli.Current,
			PureStreets:   pure,
			BaseMem:       !cli.BaseDisk,
			BaseIt:        cli.BaseIt,
			NumEndgameIts: cli.NumEndgameIts,
			NumThreads:    cli.Threads,
			Nested:        cli.Nested,
			Internal:      cli.Internal,
			Progressive:   cli.Progressive,
			CVFiles:       cli.CVFiles,
			CVKind:        cli.CVKind,
		}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialising solver")
	}
	if err := solver.Walk(); err != nil {
		logger.Fatal().Err(err).Msg("resolving failed")
	}
	log.Info().Msg("resolving complete")
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
