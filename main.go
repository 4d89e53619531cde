package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/go-authgate/climate-cli/tui"
)

// isTTY reports whether stderr is an interactive terminal.
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	cfg, rest, err := loadConfig(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	inv, err := parseInvocation(cfg, rest, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	warnInsecure(os.Stderr, cfg.APIURL)

	// prompts must finish before the TUI takes over the terminal
	if err := newTerminalPrompter().fill(inv); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	tty := isTTY()
	logger, err := newLogger(cfg, tty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	if tty {
		// Run TUI program on stderr so stdout pipes are not corrupted
		m := tui.NewModel()
		// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
		// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
		p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
		}()

		runErr := start(cfg, logger, tui.NewProgramDisplayer(p), inv)
		p.Quit() // let BubbleTea drain terminal query responses before exiting
		wg.Wait()
		if runErr != nil {
			return 1
		}
		return 0
	}

	if err := start(cfg, logger, tui.NewPlainDisplayer(os.Stderr, os.Stdout), inv); err != nil {
		return 1
	}
	return 0
}

func start(cfg *Config, logger *zap.Logger, d tui.Displayer, inv *invocation) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger, d, nil)
	if err != nil {
		d.Fatal(err)
		return err
	}
	defer a.close()

	if err := run(ctx, a, inv); err != nil {
		if errors.Is(err, context.Canceled) {
			d.Fatal(errors.New("interrupted"))
		}
		return err
	}
	return nil
}
