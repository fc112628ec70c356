package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/vanderheijden86/burnboard/internal/statestore"
	"github.com/vanderheijden86/burnboard/pkg/api"
	"github.com/vanderheijden86/burnboard/pkg/config"
	"github.com/vanderheijden86/burnboard/pkg/integrations"
	"github.com/vanderheijden86/burnboard/pkg/orchestrator"
	"github.com/vanderheijden86/burnboard/pkg/ui"
	"github.com/vanderheijden86/burnboard/pkg/version"
	"github.com/vanderheijden86/burnboard/pkg/watcher"
)

// defaultBaseURL is used when neither config nor --base-url names a backend.
const defaultBaseURL = "https://api.burnboard.dev"

func main() {
	cpuProfile := flag.String("cpu-profile", "", "Write CPU profile to file")
	help := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	baseURL := flag.String("base-url", "", "Backend base URL (overrides config)")
	analysisRef := flag.String("analysis", "", "Open a shared analysis reference")
	setToken := flag.String("set-token", "", "Store the API token and exit")
	setOrg := flag.String("org", "", "Store the selected organization id and exit")
	robot := flag.Bool("robot", false, "Non-interactive mode: print JSON instead of the TUI")
	trendsDays := flag.Int("trends-days", 0, "With --robot: print the historical trend series for N days")
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if *help {
		fmt.Println("Usage: bb [options]")
		fmt.Println("\nA dashboard for team burnout analysis.")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("bb %s\n", version.Version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		// Non-fatal: continue with defaults
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if *baseURL != "" {
		cfg.Backend.BaseURL = *baseURL
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = defaultBaseURL
	}

	statePath := config.StatePath()
	if statePath == "" {
		fmt.Fprintln(os.Stderr, "Error: cannot determine state directory")
		os.Exit(1)
	}
	store, err := statestore.Open(statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening state store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *setToken != "" {
		if err := store.SetString(statestore.KeyAuthToken, *setToken); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Token stored.")
		os.Exit(0)
	}
	if *setOrg != "" {
		if err := store.SetString(statestore.KeySelectedOrganization, *setOrg); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing organization: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Selected organization %s.\n", *setOrg)
		os.Exit(0)
	}

	token, err := resolveToken(store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	client := api.NewClient(cfg.Backend.BaseURL, token)
	refs := integrations.NewService(client, store)
	orch := orchestrator.New(orchestrator.Config{Backend: client, Refs: refs})
	defer orch.Shutdown()

	if *robot || cfg.UI.Headless || !isTerminal() {
		if err := runRobot(client, refs, orch, cfg, *analysisRef, *trendsDays); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fw, err := watcher.New(store.Path())
	if err == nil {
		if err := fw.Start(); err != nil {
			fw = nil
		}
	} else {
		fw = nil
	}
	if fw != nil {
		defer fw.Stop()
	}

	m := ui.New(ui.Options{
		Config:       cfg,
		Backend:      client,
		Orchestrator: orch,
		Integrations: refs,
		Store:        store,
		Watcher:      fw,
		InitialRef:   *analysisRef,
	})

	if err := runTUIProgram(m); err != nil {
		fmt.Printf("Error running burnboard: %v\n", err)
		os.Exit(1)
	}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// resolveToken returns the API token from the environment or the state
// store, prompting for it on first interactive use.
func resolveToken(store *statestore.Store) (string, error) {
	if tok := os.Getenv("BB_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, ok := store.GetString(statestore.KeyAuthToken); ok && tok != "" {
		return tok, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no API token: set BB_TOKEN or run 'bb --set-token <token>'")
	}

	var token string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("API token").
			Description("Stored locally for future runs").
			EchoMode(huh.EchoModePassword).
			Value(&token),
	)).WithTheme(huh.ThemeDracula())
	if err := form.Run(); err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("no API token provided")
	}
	if err := store.SetString(statestore.KeyAuthToken, token); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}
	return token, nil
}

func runTUIProgram(m tea.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set BB_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("BB_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}

				p.Quit()

				select {
				case <-runDone:
					return
				case <-time.After(2 * time.Second):
				}

				p.Kill()
			}()
		}
	}

	_, err := p.Run()
	if err != nil && (errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted)) {
		return nil
	}
	return err
}
