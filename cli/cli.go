package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/replayrig/replayrig/agent"
	"github.com/replayrig/replayrig/browser"
	"github.com/replayrig/replayrig/detect"
	"github.com/replayrig/replayrig/run"
)

const AppName = "replayrig"

// ExitBugFound is the exit code of a chaos run that reported a bug.
const ExitBugFound = 2

type App struct {
	logger zerolog.Logger
	cli    *cli.App
	out    io.Writer

	// launcher overrides the rod launcher, nil outside of tests
	launcher browser.Launcher
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		out:    os.Stdout,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Drive a browser game with chaos and exploration agents and file what breaks",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "artifacts",
					Usage:   "Root directory for screenshots, videos, bugs, coverage and run records",
					EnvVars: []string{"ARTIFACTS_ROOT"},
					Value:   run.DefaultArtifactsRoot,
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
			// exit codes are handled by main
			ExitErrHandler: func(*cli.Context, error) {},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "chaos",
		Usage:  "Cycle adversarial inputs until the game crashes or hangs",
		Action: app.chaos,
		Flags: append(targetFlags(),
			&cli.IntFlag{
				Name:  "steps",
				Usage: "Maximum number of actions",
				Value: 16,
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "Wall-clock budget, 0 for none",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Seed for random clicks",
				Value: agent.DefaultChaosSeed,
			},
			&cli.DurationFlag{
				Name:  "step-delay",
				Usage: "Pause between actions, 0 for the default, negative for none",
				Value: agent.DefaultChaosStepDelay,
			},
			&cli.BoolFlag{
				Name:  "record-video",
				Usage: "Record the session as MJPEG and attach it to the bug report",
			},
			&cli.IntFlag{
				Name:  "max-same-screen-steps",
				Usage: "Steps the same screen may repeat before it counts as a hang, must be positive",
				Value: detect.DefaultMaxSameScreenSteps,
			},
			&cli.DurationFlag{
				Name:  "max-loading",
				Usage: "How long a loading screen may last before it counts as a hang, must be positive",
				Value: detect.DefaultMaxLoading,
			},
			&cli.StringSliceFlag{
				Name:  "fatal-pattern",
				Usage: "Console text that counts as a crash (default: " + strings.Join(detect.DefaultFatalConsolePatterns, ", ") + ")",
			},
		),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "explore",
		Usage:  "Explore the game's screens and record coverage",
		Action: app.explore,
		Flags: append(targetFlags(),
			&cli.IntFlag{
				Name:  "steps",
				Usage: "Number of exploration steps",
				Value: agent.DefaultExplorerSteps,
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Seed for random clicks",
				Value: agent.DefaultExplorerSeed,
			},
			&cli.StringSliceFlag{
				Name:  "expected-screens",
				Usage: "Screens the game is expected to have",
				Value: cli.NewStringSlice(agent.DefaultExpectedScreens...),
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Write coverage here instead of <artifacts>/coverage/<run>.json",
			},
			&cli.BoolFlag{
				Name:  "live-vision",
				Usage: "Read screens with an OpenAI-compatible vision model instead of the mock",
			},
			&cli.StringFlag{
				Name:    "vision-api-key",
				Usage:   "API key of the vision endpoint",
				EnvVars: []string{"VISION_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "vision-base-url",
				Usage:   "Base URL of the vision endpoint",
				EnvVars: []string{"VISION_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "vision-model",
				Usage:   "Vision model or Azure deployment name",
				EnvVars: []string{"VISION_MODEL"},
			},
			&cli.StringFlag{
				Name:    "vision-api-version",
				Usage:   "Azure OpenAI API version; selects the Azure dialect when set",
				EnvVars: []string{"VISION_API_VERSION"},
			},
		),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Only show runs of this mode (chaos or explore)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "View the bug report or coverage of a run",
		ArgsUsage:       "[ID|INDEX] [--pprof] [-- pprof args]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `View the bug report or coverage of a previous run.

Arguments:
  0           View last run (default)
  -1          View 2nd last run
  -2          View 3rd last run
  <id>        View run matching the ID prefix
  --pprof     Open the coverage profile with go tool pprof

Examples:
  replayrig view                      # View last run
  replayrig view -1                   # View 2nd last run
  replayrig view 20260301             # View run with ID starting with 20260301
  replayrig view 0 --pprof -- -top    # Show coverage profile of the last run`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "issue",
		Usage:  "Render a bug report as a GitHub issue and file it",
		Action: app.issue,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "bug",
				Usage:    "Path to the bug report JSON",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the issue without calling GitHub (implied without a token)",
			},
			&cli.StringFlag{
				Name:  "labels",
				Usage: "Comma separated issue labels",
				Value: "bug,qa-swarm",
			},
			&cli.StringFlag{
				Name:  "evidence",
				Usage: "Where evidence is published: local or github-release",
				Value: evidenceLocal,
			},
			&cli.StringFlag{
				Name:    "github-repo",
				Usage:   "Repository to file the issue in (owner/repo)",
				EnvVars: []string{"GITHUB_REPO"},
			},
			&cli.StringFlag{
				Name:    "github-token",
				Usage:   "GitHub token",
				EnvVars: []string{"GITHUB_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "github-api-url",
				Usage:   "GitHub API base URL",
				EnvVars: []string{"GITHUB_API_URL"},
			},
		},
	})
	return app
}

func (a *App) Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return a.cli.RunContext(ctx, args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

// ExitCode maps an error returned by Run to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

func targetFlags() []cli.Flag {
	target := agent.DefaultTarget()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			Usage:   "URL of the game under test",
			EnvVars: []string{"TARGET_GAME_URL"},
			Value:   target.URL,
		},
		&cli.IntFlag{
			Name:    "viewport-width",
			EnvVars: []string{"GAME_VIEWPORT_WIDTH"},
			Value:   target.Viewport.Width,
		},
		&cli.IntFlag{
			Name:    "viewport-height",
			EnvVars: []string{"GAME_VIEWPORT_HEIGHT"},
			Value:   target.Viewport.Height,
		},
		&cli.StringFlag{
			Name:    "state-selector",
			Usage:   "Selector of the element naming the current screen",
			EnvVars: []string{"GAME_STATE_LABEL_SELECTOR"},
			Value:   target.StateSelector,
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the browser without a window",
		},
		&cli.StringFlag{
			Name:    "control-url",
			Usage:   "DevTools websocket of an already running browser",
			EnvVars: []string{"BROWSER_CONTROL_URL"},
		},
	}
}

func targetFromContext(ctx *cli.Context) agent.Target {
	target := agent.DefaultTarget()
	target.URL = ctx.String("url")
	target.Viewport = browser.Viewport{
		Width:  ctx.Int("viewport-width"),
		Height: ctx.Int("viewport-height"),
	}
	target.StateSelector = ctx.String("state-selector")
	return target
}

func (a *App) launcherFor(ctx *cli.Context) browser.Launcher {
	if a.launcher != nil {
		return a.launcher
	}
	var opts []browser.RodOption
	if u := ctx.String("control-url"); u != "" {
		opts = append(opts, browser.WithControlURL(u))
	}
	return browser.NewRod(a.logger, opts...)
}

// artifactsRoot resolves --artifacts the same way a run context does.
func artifactsRoot(ctx *cli.Context) string {
	rc := run.Context{ArtifactsRoot: ctx.String("artifacts")}
	return rc.Root()
}
