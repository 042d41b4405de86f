package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/blockfall/blockfall-server-go/internal/ai"
	"github.com/blockfall/blockfall-server-go/internal/clock"
	"github.com/blockfall/blockfall-server-go/internal/game"
	"github.com/blockfall/blockfall-server-go/internal/room"
	"github.com/blockfall/blockfall-server-go/internal/tournament"
	"go.uber.org/zap"
)

// The arena runs AI-versus-AI matches on a virtual clock, so a full
// match finishes in milliseconds of wall time. Useful for persona
// balancing and as a deterministic smoke test of the whole room stack.

var (
	matches    = flag.Int("matches", 1, "number of matches to run")
	personaA   = flag.String("a", "normal", "persona in seat A")
	personaB   = flag.String("b", "normal", "persona in seat B")
	seed       = flag.Int64("seed", 1, "room seed of the first match; match n uses seed+n")
	maxVirtual = flag.Duration("max", 30*time.Minute, "virtual time cap per match")
	step       = flag.Duration("step", 50*time.Millisecond, "virtual clock step")
	replayDir  = flag.String("replays", "", "directory for replay logs (empty disables)")
	roundRobin = flag.Bool("tournament", false, "round-robin every persona instead of a fixed A/B pairing")
	legs       = flag.Int("legs", 1, "times each pair meets in tournament mode")
	verbose    = flag.Bool("v", false, "log room internals")
)

type seatStats struct {
	persona string
	wins    int
	score   int
	lines   int
}

type matchOutcome struct {
	idA, idB  string
	winnerID  string
	endReason string
	finished  bool
	virtual   time.Duration
	scoreA    int
	linesA    int
	scoreB    int
	linesB    int
}

func main() {
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}
	defer logger.Sync()

	if *roundRobin {
		runTournament(logger)
		return
	}
	runHeadToHead(logger)
}

func runHeadToHead(logger *zap.Logger) {
	if _, ok := ai.ByName(*personaA); !ok {
		log.Fatalf("unknown persona %q for seat A", *personaA)
	}
	if _, ok := ai.ByName(*personaB); !ok {
		log.Fatalf("unknown persona %q for seat B", *personaB)
	}

	fmt.Println("=== Blockfall Arena ===")
	fmt.Printf("Seat A: %s | Seat B: %s | matches: %d | base seed: %d\n\n",
		*personaA, *personaB, *matches, *seed)

	seatA := &seatStats{persona: *personaA}
	seatB := &seatStats{persona: *personaB}
	draws := 0
	started := time.Now()

	for n := 0; n < *matches; n++ {
		out := runMatch(fmt.Sprintf("arena-%03d", n), *seed+int64(n), seatA.persona, seatB.persona, logger)
		seatA.score += out.scoreA
		seatA.lines += out.linesA
		seatB.score += out.scoreB
		seatB.lines += out.linesB

		switch {
		case !out.finished:
			draws++
			fmt.Printf("match %03d  draw after %s (A %d/%d, B %d/%d)\n",
				n, out.virtual, out.scoreA, out.linesA, out.scoreB, out.linesB)
		case out.winnerID == out.idA:
			seatA.wins++
			fmt.Printf("match %03d  A (%s) wins in %s (A %d/%d, B %d/%d)\n",
				n, seatA.persona, out.virtual, out.scoreA, out.linesA, out.scoreB, out.linesB)
		default:
			seatB.wins++
			fmt.Printf("match %03d  B (%s) wins in %s (A %d/%d, B %d/%d)\n",
				n, seatB.persona, out.virtual, out.scoreA, out.linesA, out.scoreB, out.linesB)
		}
	}

	fmt.Println("\n=== Results ===")
	fmt.Printf("Seat A (%s): %d wins, %d total lines, %d total score\n",
		seatA.persona, seatA.wins, seatA.lines, seatA.score)
	fmt.Printf("Seat B (%s): %d wins, %d total lines, %d total score\n",
		seatB.persona, seatB.wins, seatB.lines, seatB.score)
	if draws > 0 {
		fmt.Printf("Draws (virtual cap reached): %d\n", draws)
	}
	fmt.Printf("Wall time: %s\n", time.Since(started).Round(time.Millisecond))
}

func runTournament(logger *zap.Logger) {
	tour := tournament.New("persona round robin", logger)
	for _, name := range ai.Names() {
		if err := tour.AddEntrant(name); err != nil {
			log.Fatalf("Failed to register %s: %v", name, err)
		}
	}
	if err := tour.Start(*legs); err != nil {
		log.Fatalf("Failed to start tournament: %v", err)
	}

	fmt.Println("=== Blockfall Arena Tournament ===")
	fmt.Printf("Entrants: %v | legs: %d | base seed: %d\n\n", ai.Names(), *legs, *seed)

	started := time.Now()
	n := 0
	for {
		fx, ok := tour.NextFixture()
		if !ok {
			break
		}
		out := runMatch(fmt.Sprintf("arena-r%02d-%03d", fx.Round, n), *seed+int64(n), fx.Home, fx.Away, logger)
		n++

		winner, reason := "", "timeout"
		switch {
		case out.finished && out.winnerID == out.idA:
			winner, reason = fx.Home, out.endReason
		case out.finished:
			winner, reason = fx.Away, out.endReason
		}
		if err := tour.RecordResult(fx.Round, fx.Home, fx.Away, winner, reason, out.scoreA, out.scoreB); err != nil {
			log.Fatalf("Failed to record result: %v", err)
		}

		label := "draw"
		if winner != "" {
			label = winner + " wins"
		}
		fmt.Printf("round %d  %s vs %s  %s in %s (%d/%d - %d/%d)\n",
			fx.Round, fx.Home, fx.Away, label, out.virtual,
			out.scoreA, out.linesA, out.scoreB, out.linesB)
	}

	fmt.Println("\n=== Standings ===")
	fmt.Printf("%-8s %3s %3s %3s %3s %6s\n", "persona", "pts", "w", "l", "d", "score")
	for _, e := range tour.Standings() {
		fmt.Printf("%-8s %3d %3d %3d %3d %6d\n", e.Name, e.Points, e.Wins, e.Losses, e.Draws, e.Score)
	}
	fmt.Printf("Wall time: %s\n", time.Since(started).Round(time.Millisecond))
}

func runMatch(roomID string, matchSeed int64, home, away string, logger *zap.Logger) matchOutcome {
	clk := clock.NewManual(time.Unix(0, 0))

	var replays *game.Recorder
	if *replayDir != "" {
		replays = game.NewRecorder(*replayDir, logger)
	}

	r := room.NewRoom(room.Config{
		ID:      roomID,
		Seed:    matchSeed,
		Clock:   clk,
		Replays: replays,
	}, logger)

	idA, err := r.JoinAI(home)
	if err != nil {
		log.Fatalf("Failed to seat %s: %v", home, err)
	}
	idB, err := r.JoinAI(away)
	if err != nil {
		log.Fatalf("Failed to seat %s: %v", away, err)
	}

	var virtual time.Duration
	for r.Status() != room.StatusFinished && virtual < *maxVirtual {
		r.Advance(clk.Advance(*step))
		virtual += *step
	}
	r.Shutdown()

	engA, _ := r.EngineFor(idA)
	engB, _ := r.EngineFor(idB)
	snapA := engA.PublicState(clk.Now())
	snapB := engB.PublicState(clk.Now())

	out := matchOutcome{
		idA:     idA,
		idB:     idB,
		virtual: virtual,
		scoreA:  snapA.Score,
		linesA:  snapA.Lines,
		scoreB:  snapB.Score,
		linesB:  snapB.Lines,
	}
	out.winnerID, _, out.finished = r.Winner()
	out.endReason = r.EndReason()
	return out
}
