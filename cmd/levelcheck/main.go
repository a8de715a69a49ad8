// Command levelcheck inspects level files and recorded moves offline.
//
//	levelcheck validate [--levels-dir DIR] [FILE...]
//	levelcheck play --level 1 --moves ULURLLLDRRR
//	levelcheck journal FILE...
//
// validate runs the same schema and layout checks the server applies. play
// replays a move string through the local engine and draws every step.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/sokoban-ledger/game/config"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/journal"
)

// errInvalid marks a run that found problems; the details were already printed
var errInvalid = errors.New("problems found")

func main() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	levelsDir := &cli.StringFlag{
		Name:    "levels-dir",
		Usage:   "directory of level files",
		Sources: cli.EnvVars("LEVELS_DIR"),
	}

	return &cli.Command{
		Name:      "levelcheck",
		Usage:     "validate levels and replay move strings offline",
		Writer:    out,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "check level files (or every level in the catalog)",
				ArgsUsage: "[FILE...]",
				Flags:     []cli.Flag{levelsDir},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runValidate(out, cmd.String("levels-dir"), cmd.Args().Slice())
				},
			},
			{
				Name:  "play",
				Usage: "replay moves against a level and draw the board",
				Flags: []cli.Flag{
					levelsDir,
					&cli.IntFlag{Name: "level", Aliases: []string{"l"}, Value: 1, Usage: "level ID"},
					&cli.StringFlag{Name: "moves", Aliases: []string{"m"}, Usage: `moves such as "ULURR" or "up,left"`},
					&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only draw the final board"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runPlay(out, cmd.String("levels-dir"), int(cmd.Int("level")), cmd.String("moves"), cmd.Bool("quiet"))
				},
			},
			{
				Name:      "journal",
				Usage:     "print the entries of journal files",
				ArgsUsage: "FILE...",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() == 0 {
						return fmt.Errorf("journal: at least one file is required")
					}
					return runJournal(out, cmd.Args().Slice())
				},
			},
		},
	}
}

func runValidate(out io.Writer, levelsDir string, files []string) error {
	manager, err := config.NewManager("")
	if err != nil {
		return err
	}

	if len(files) == 0 && levelsDir != "" {
		entries, err := os.ReadDir(levelsDir)
		if err != nil {
			return fmt.Errorf("failed to read level directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				files = append(files, filepath.Join(levelsDir, entry.Name()))
			}
		}
	}

	if len(files) == 0 {
		levels, err := manager.ListLevels()
		if err != nil {
			return err
		}
		for _, l := range levels {
			fmt.Fprintf(out, "ok   %-24s level %d %q (%dx%d, %d boxes, %d moves)\n",
				l.Source, l.ID, l.Name, l.Width, l.Height, l.Boxes, l.MaxMoves)
			layout, err := manager.LoadLayout(l.ID)
			if err != nil {
				return err
			}
			warnStuck(out, fmt.Sprintf("level %d", l.ID), layout)
		}
		return nil
	}

	failed := 0
	for _, path := range files {
		level, layout, err := manager.ValidateFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s: level %d %q (%dx%d, %d boxes, %d moves)\n",
			path, level.ID, level.Name, layout.Width, layout.Height, layout.BoxCount(), layout.MaxMoves)
		warnStuck(out, path, layout)
	}

	if failed > 0 {
		fmt.Fprintf(out, "%d of %d files failed\n", failed, len(files))
		return errInvalid
	}
	return nil
}

// warnStuck reports a start position with no legal move
func warnStuck(out io.Writer, name string, layout *engine.Layout) {
	if len(engine.PossibleMoves(layout, layout.InitialState())) == 0 {
		fmt.Fprintf(out, "warn %s: player has no legal first move\n", name)
	}
}

func runPlay(out io.Writer, levelsDir string, levelID int, moveString string, quiet bool) error {
	manager, err := config.NewManager(levelsDir)
	if err != nil {
		return err
	}
	layout, err := manager.LoadLayout(levelID)
	if err != nil {
		return err
	}
	moves, err := engine.ParseMoveString(moveString)
	if err != nil {
		return err
	}

	ledger := engine.NewLedger(layout)
	fmt.Fprintf(out, "Level %d: %s (%d moves allowed)\n", layout.ID, layout.Name, layout.MaxMoves)
	if !quiet {
		drawBoard(out, layout, ledger.CurrentState())
	}

	for i, d := range moves {
		before := ledger.CurrentState()
		if !ledger.AddMove(d) {
			reason := "move budget exhausted"
			if _, why := engine.Step(layout, before, d); why != engine.Accepted {
				reason = why.String()
			}
			fmt.Fprintf(out, "move %d %s refused: %s\n", i+1, d, reason)
			break
		}
		if !quiet {
			fmt.Fprintf(out, "move %d %s %s\n", i+1, d.Arrow(), d)
			drawBoard(out, layout, ledger.CurrentState())
		}
	}

	state := ledger.CurrentState()
	if quiet {
		drawBoard(out, layout, state)
	}
	fmt.Fprintf(out, "%d/%d moves recorded: %s\n", ledger.Len(), layout.MaxMoves, engine.FormatMoves(ledger.Moves()))
	fmt.Fprintf(out, "boxes on goals: %d/%d\n", engine.BoxesOnGoals(layout, state), len(layout.Goals))
	if ledger.IsSolved() {
		fmt.Fprintln(out, "SOLVED")
		return nil
	}
	fmt.Fprintln(out, "not solved")
	return errInvalid
}

func drawBoard(out io.Writer, layout *engine.Layout, state engine.State) {
	for _, row := range engine.Render(layout, state) {
		fmt.Fprintf(out, "  %s\n", row)
	}
}

func runJournal(out io.Writer, files []string) error {
	for _, path := range files {
		entries, err := journal.ReadFile(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			line := []string{
				e.Time.Format("2006-01-02 15:04:05"),
				fmt.Sprintf("%-15s", e.Call),
				fmt.Sprintf("level=%d", e.LevelID),
				e.Outcome,
			}
			if e.SessionID != "" {
				line = append(line, "session="+e.SessionID)
			}
			if e.MoveCount > 0 {
				line = append(line, fmt.Sprintf("moves=%d", e.MoveCount))
			}
			if e.Digest != "" {
				line = append(line, "digest="+e.Digest)
			}
			if e.Code != 0 {
				line = append(line, fmt.Sprintf("code=%d", e.Code))
			}
			if e.Error != "" {
				line = append(line, fmt.Sprintf("error=%q", e.Error))
			}
			fmt.Fprintln(out, strings.Join(line, " "))
		}
	}
	return nil
}
