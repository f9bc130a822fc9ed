// Command selfplay runs seeded bot matches and reports how they ended.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/crystalrace/crystal-server-go/internal/config"
	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/game/ai"
)

var (
	configPath = flag.String("config", "", "optional configuration file for the game rules")
	matches    = flag.Int("matches", 10, "number of matches to play")
	seed       = flag.Uint64("seed", 1, "seed of the first match; match i uses seed+i")
	players    = flag.Int("players", 2, "players per match (2-4)")
	policy     = flag.String("policy", "mixed", "bot policy: greedy, random or mixed")
	maxTurns   = flag.Int("max-turns", ai.DefaultMaxTurns, "turn cap per match")
	replayDir  = flag.String("replays", "", "directory to write replays to")
	verbose    = flag.Bool("v", false, "log every match at debug level")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	zapCfg := zap.NewDevelopmentConfig()
	if !*verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var recorder *game.ReplayRecorder
	if *replayDir != "" {
		recorder = game.NewReplayRecorder(logger, *replayDir)
	}

	rules := cfg.Game.Rules()
	wins := make(map[string]int)
	capped := 0
	for i := 0; i < *matches; i++ {
		s := *seed + uint64(i)
		out, err := playOne(ctx, rules, s, recorder, logger)
		if err != nil {
			logger.Error("match failed", zap.Uint64("seed", s), zap.Error(err))
			os.Exit(1)
		}
		if out.Capped {
			capped++
		} else {
			wins[out.WinnerID]++
		}
		fmt.Printf("seed %-6d winner %-4s turns %-4d actions %d\n", s, orDash(out.WinnerID), out.Turns, out.Actions)
	}

	fmt.Println(strings.Repeat("-", 40))
	for _, id := range seatIDs(*players) {
		fmt.Printf("%-4s %d wins\n", id, wins[id])
	}
	fmt.Printf("capped %d of %d\n", capped, *matches)
}

func playOne(ctx context.Context, r game.Rules, s uint64, recorder *game.ReplayRecorder, logger *zap.Logger) (ai.Outcome, error) {
	id := fmt.Sprintf("selfplay-%d", s)
	seats := seatIDs(*players)
	g, err := ai.NewMatch(id, r, s, seats, logger.With(zap.String("match_id", id)))
	if err != nil {
		return ai.Outcome{}, err
	}

	policies := make(map[string]ai.Policy, len(seats))
	for i, p := range seats {
		switch {
		case *policy == "random", *policy == "mixed" && i%2 == 1:
			policies[p] = ai.NewRandom(s*31 + uint64(i))
		default:
			policies[p] = ai.NewGreedy(s*31 + uint64(i))
		}
	}

	opts := ai.Options{MaxTurns: *maxTurns, Logger: logger}
	if recorder != nil {
		if err := recorder.StartRecording(id, g.Snapshot()); err != nil {
			return ai.Outcome{}, err
		}
		opts.OnAction = func(a game.Action, _ game.Result) {
			recorder.RecordState(id, fmt.Sprint(a), g.Snapshot())
		}
	}

	out, err := ai.PlayMatch(ctx, g, policies, opts)
	if err != nil {
		return out, err
	}
	if recorder != nil {
		if err := recorder.SaveReplay(id); err != nil {
			return out, err
		}
		recorder.ClearReplay(id)
	}
	return out, nil
}

func seatIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i+1)
	}
	return ids
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
