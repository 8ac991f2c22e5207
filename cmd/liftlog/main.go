package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/claude/liftlog/internal/config"
	"github.com/claude/liftlog/internal/gateway"
	"github.com/claude/liftlog/internal/localstore"
	liftlogmcp "github.com/claude/liftlog/internal/mcp"
	"github.com/claude/liftlog/internal/session"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const usage = `Usage: liftlog [-config FILE] [-mcp] <command> [args]

Commands:
  routines                        list available routines
  start <routine-id>              start a workout for a routine
  set <exercise-id> <set#> [reps] [weight]
                                  log a completed set
  status                          show the current/pending workout
  resume                          resume a pending workout session
  save [notes]                    complete the workout on the backend
  discard                         discard the workout
  cleanup                         force-cancel a stuck backend session
`

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of running a command")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("liftlog", Version)
		return
	}

	// MCP traffic owns stdout in -mcp mode; logs go to stderr either way.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	stateDir, err := cfg.Client.ResolveStateDir()
	if err != nil {
		log.Error("failed to resolve state dir", "error", err)
		os.Exit(1)
	}

	store, err := localstore.Open(stateDir, log)
	if err != nil {
		log.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	userID := cfg.Client.UserID
	if userID == 0 {
		userID = 1
	}
	gw := gateway.New(cfg.Client.ServerURL, cfg.Client.APIKey, userID)
	ctrl := session.NewController(store, gw, log)

	ctx := context.Background()

	// A backend reset invalidates every locally stored identifier, so check
	// the data generation before doing anything else.
	if wiped, err := ctrl.CheckDBVersionAndCleanup(ctx); err != nil {
		log.Warn("backend generation check failed", "error", err)
	} else if wiped {
		log.Warn("backend data was reset; local session state wiped")
	}

	if *mcpMode {
		srv := liftlogmcp.New(ctrl, gw, Version, log)
		if err := mcpserver.ServeStdio(srv); err != nil {
			log.Error("mcp server error", "error", err)
			os.Exit(1)
		}
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err := run(ctx, ctrl, gw, args); err != nil {
		log.Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, ctrl *session.Controller, gw *gateway.Client, args []string) error {
	switch args[0] {
	case "routines":
		routines, err := gw.ListRoutines(ctx, 50)
		if err != nil {
			return err
		}
		for _, r := range routines {
			fmt.Printf("%4d  %s\n", r.ID, r.Name)
		}
		return nil

	case "start":
		if len(args) < 2 {
			return fmt.Errorf("usage: start <routine-id>")
		}
		routineID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid routine id %q", args[1])
		}
		if err := ctrl.Start(ctx, routineID); err != nil {
			if errors.Is(err, session.ErrPendingSessionExists) || errors.Is(err, gateway.ErrActiveSessionExists) {
				return fmt.Errorf("%w; resume or discard it first", err)
			}
			return err
		}
		printStatus(ctrl)
		return nil

	case "set":
		if len(args) < 3 {
			return fmt.Errorf("usage: set <exercise-id> <set#> [reps] [weight]")
		}
		exerciseID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid exercise id %q", args[1])
		}
		setNumber, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid set number %q", args[2])
		}
		var reps *int
		if len(args) > 3 {
			v, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("invalid reps %q", args[3])
			}
			reps = &v
		}
		var weight *float64
		if len(args) > 4 {
			v, err := strconv.ParseFloat(args[4], 64)
			if err != nil {
				return fmt.Errorf("invalid weight %q", args[4])
			}
			weight = &v
		}
		if err := ctrl.CompleteSet(ctx, exerciseID, setNumber, reps, weight); err != nil {
			return err
		}
		printStatus(ctrl)
		return nil

	case "status":
		outcome, err := ctrl.Load(ctx)
		if err != nil {
			return err
		}
		if outcome.Kind == session.OutcomeNone {
			fmt.Println("no workout in progress")
			return nil
		}
		fmt.Printf("%s session: routine %d (%s), started %s, %d sets logged\n",
			outcome.Kind, outcome.Session.RoutineID, outcome.Session.RoutineName,
			outcome.Session.StartedAt.Local().Format(time.RFC822),
			len(outcome.Session.CompletedSets))
		return nil

	case "resume":
		outcome, err := ctrl.Load(ctx)
		if err != nil {
			return err
		}
		if outcome.Kind == session.OutcomeNone || outcome.Session == nil {
			return fmt.Errorf("nothing to resume")
		}
		if err := ctrl.Resume(ctx, outcome.Session); err != nil {
			return err
		}
		printStatus(ctrl)
		return nil

	case "save":
		notes := ""
		if len(args) > 1 {
			notes = args[1]
		}
		if err := ctrl.Save(ctx, notes); err != nil {
			return fmt.Errorf("save failed, workout kept for retry: %w", err)
		}
		fmt.Println("workout saved")
		return nil

	case "discard":
		if err := ctrl.Discard(ctx); err != nil {
			return err
		}
		fmt.Println("workout discarded")
		return nil

	case "cleanup":
		if err := ctrl.ForceCleanupOrphanedSession(ctx); err != nil {
			return err
		}
		fmt.Println("session state cleaned up")
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printStatus(ctrl *session.Controller) {
	st := ctrl.State()
	if st == nil {
		fmt.Println("no workout in progress")
		return
	}
	fmt.Printf("routine %d (%s): exercise %d, set %d, %d sets logged\n",
		st.RoutineID, st.RoutineName, st.CurrentExerciseIndex+1, st.CurrentSet, len(st.CompletedSets))
}
