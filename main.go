package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"oscar/config"
	"oscar/dispatcher"
	"oscar/generation"
	"oscar/mcp"
	"oscar/model"
	"oscar/provider"
	"oscar/server"
	"oscar/session"
	"oscar/state"
	"oscar/storage"
	"oscar/ui"
	"oscar/voice"
)

const Version = "v0.1.0"

// flags override the matching config values when set
type flags struct {
	configPath string
	addr       string
	provider   string
	model      string
	remote     string
	agent      string
	baseHTML   string
	debug      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	meet := &cobra.Command{
		Use:   "meet",
		Short: "Run a meeting with the voice agent (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeet(cmd.Context(), f)
		},
	}

	root := &cobra.Command{
		Use:          "oscar",
		Short:        "Talk through a UI and watch the mockups appear",
		Version:      Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         meet.RunE,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "user config file (default <data_dir>/config.toml)")
	pf.StringVar(&f.addr, "addr", "", "HTTP listen address")
	pf.StringVar(&f.provider, "provider", "", "generation provider: ollama, openai, anthropic, gemini, openrouter")
	pf.StringVar(&f.model, "model", "", "generation model")
	pf.StringVar(&f.remote, "remote", "", "use a remote generation server instead of a provider")
	pf.StringVar(&f.agent, "agent", "", "voice agent: elevenlabs or local")
	pf.StringVar(&f.baseHTML, "base-html", "", "HTML file to seed the canvas with")
	pf.BoolVar(&f.debug, "debug", false, "debug logging")

	root.AddCommand(
		meet,
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the generation HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), f)
			},
		},
		&cobra.Command{
			Use:   "mcp",
			Short: "Serve the mockup tools over MCP on stdin/stdout",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMCP(cmd.Context(), f)
			},
		},
		&cobra.Command{
			Use:   "tools",
			Short: "Print the tool definitions and their JSON schemas",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printTools(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "Print the console keybindings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printKeys(cmd.OutOrStdout(), f)
			},
		},
		newCredentialsCmd(f),
	)
	return root
}

func newCredentialsCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage stored API keys",
		Args:  cobra.NoArgs,
	}

	var sshKey string
	method := &cobra.Command{
		Use:       "method plaintext|ssh_key",
		Short:     "Switch how API keys are stored, re-saving the existing ones",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(config.SecurityPlainText), string(config.SecuritySSHKey)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.configPath != "" {
				return errors.New("--config is read-only here, edit [security] in that file instead")
			}
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			next, err := config.SwitchCredentialStorage(cfg.DataDir(), cfg.CredentialStore, config.SecurityMethod(args[0]), sshKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credentials stored as %s (%d keys)\n", next.GetMethod(), len(next.IDs()))
			return nil
		},
	}
	method.Flags().StringVar(&sshKey, "ssh-key", "~/.ssh/id_ed25519", "SSH private key for ssh_key storage")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show which providers have a key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(f)
				if err != nil {
					return err
				}
				return listCredentials(cmd.OutOrStdout(), cfg)
			},
		},
		&cobra.Command{
			Use:   "set <provider>",
			Short: "Store an API key read from stdin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, ok := config.APIKeyEnv(args[0]); !ok {
					return fmt.Errorf("unknown provider %q, want one of %v", args[0], config.CredentialIDs())
				}
				key, err := readKey(cmd.InOrStdin())
				if err != nil {
					return err
				}
				cfg, err := loadConfig(f)
				if err != nil {
					return err
				}
				cfg.CredentialStore.Set(args[0], key)
				if err := cfg.CredentialStore.Save(cfg.DataDir()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s key (%s)\n", args[0], cfg.CredentialStore.GetMethod())
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <provider>",
			Short: "Remove a stored API key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(f)
				if err != nil {
					return err
				}
				if cfg.CredentialStore.Get(args[0]) == "" {
					return fmt.Errorf("no stored key for %q", args[0])
				}
				cfg.CredentialStore.Delete(args[0])
				if err := cfg.CredentialStore.Save(cfg.DataDir()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s key\n", args[0])
				return nil
			},
		},
		method,
	)
	return cmd
}

// readKey takes the first line of r, trimmed
func readKey(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return "", errors.New("no key on stdin")
	}
	key := strings.TrimSpace(sc.Text())
	if key == "" {
		return "", errors.New("empty key")
	}
	return key, nil
}

func listCredentials(w io.Writer, cfg *config.Config) error {
	store := cfg.CredentialStore
	fmt.Fprintf(w, "storage: %s\n", store.GetMethod())
	for _, id := range config.CredentialIDs() {
		source := "-"
		env, _ := config.APIKeyEnv(id)
		switch {
		case os.Getenv(env) != "":
			source = "env " + env
		case store.Get(id) != "":
			source = "stored"
		}
		fmt.Fprintf(w, "%-12s %s\n", id, source)
	}
	return nil
}

func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.provider != "" {
		cfg.Provider = f.provider
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	if f.remote != "" {
		cfg.RemoteURL = f.remote
	}
	if f.agent != "" {
		cfg.Agent = f.agent
	}
	if f.baseHTML != "" {
		cfg.BaseHTMLPath = f.baseHTML
	}
	cfg.Debug = cfg.Debug || f.debug
	return cfg, nil
}

// buildGenerator returns the remote client when a remote URL is configured,
// otherwise a local service over the configured provider. The provider is
// nil in remote mode.
func buildGenerator(cfg *config.Config) (generation.Generator, model.Provider, error) {
	if cfg.RemoteURL != "" {
		return generation.NewRemote(cfg.RemoteURL, cfg.GenerationTimeout), nil, nil
	}
	p, err := provider.FromConfig(cfg, cfg.Provider, cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	return generation.NewService(p, generation.Options{
		MaxParallel: cfg.MaxParallelVariants,
		Timeout:     cfg.GenerationTimeout,
	}), p, nil
}

// seedHTML picks the document shown before anything is generated: the
// configured file, then the remote server's base document, then the
// built-in one.
func seedHTML(ctx context.Context, cfg *config.Config, gen generation.Generator) (string, error) {
	if cfg.BaseHTMLPath != "" {
		data, err := os.ReadFile(config.ExpandPath(cfg.BaseHTMLPath))
		if err != nil {
			return "", fmt.Errorf("failed to read base HTML: %w", err)
		}
		return string(data), nil
	}
	if remote, ok := gen.(*generation.Remote); ok {
		html, err := remote.BaseHTML(ctx)
		if err == nil {
			return html, nil
		}
		log.Warn().Err(err).Msg("Remote base HTML unavailable, using built-in")
	}
	return server.DefaultBaseHTML(), nil
}

func buildDialer(cfg *config.Config) (voice.Dialer, error) {
	switch cfg.Agent {
	case "local":
		p, err := provider.FromConfig(cfg, cfg.AgentProviderID(), cfg.AgentModel)
		if err != nil {
			return nil, fmt.Errorf("local agent: %w", err)
		}
		return voice.NewLocalDialer(p, cfg.MaxToolSteps), nil
	case "elevenlabs", "":
		if cfg.AgentID == "" {
			return nil, errors.New("voice.agent_id is not set (config.toml or OSCAR_AGENT_ID)")
		}
		return voice.NewElevenLabsDialer(voice.ElevenLabsConfig{
			APIKey: cfg.APIKey("elevenlabs"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown voice agent %q", cfg.Agent)
	}
}

// startupError shows err in a full-screen modal before exiting
func startupError(title string, err error) error {
	p := tea.NewProgram(ui.NewErrorModal(title, err.Error()), tea.WithAltScreen())
	if _, runErr := p.Run(); runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func runMeet(ctx context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return startupError("Configuration Error", err)
	}

	logs, err := config.InitLogging(cfg.DataDir(), true, cfg.Debug || config.CheckDebug())
	if err != nil {
		return startupError("Logging Error", err)
	}
	defer logs.Close()

	kb, err := config.LoadKeybindings(cfg.DataDir())
	if err != nil {
		return startupError("Keybindings Error", err)
	}
	if ok, warning := kb.Validate(); !ok {
		return startupError("Keybindings Error", errors.New(warning))
	} else if warning != "" {
		log.Warn().Msg(warning)
	}

	gen, prov, err := buildGenerator(cfg)
	if err != nil {
		return startupError("Provider Error", err)
	}
	dial, err := buildDialer(cfg)
	if err != nil {
		return startupError("Voice Agent Error", err)
	}

	store := state.NewStore()
	defer store.Close()

	base, err := seedHTML(ctx, cfg, gen)
	if err != nil {
		return startupError("Base HTML Error", err)
	}
	if err := store.SeedCanvas([]string{base}); err != nil {
		return err
	}

	d, err := dispatcher.New(gen, store)
	if err != nil {
		return err
	}

	exports, err := storage.NewExportStorage(cfg.DataDir())
	if err != nil {
		return startupError("Storage Error", err)
	}

	bridge := ui.NewBridge()
	ctrl := session.NewController(dial, store, session.Options{
		AgentID:        cfg.AgentID,
		ConnectionType: cfg.ConnectionType,
		ClientTools:    d.ClientTools(),
		Tools:          d.Tools(),
		Microphone:     session.MicrophoneFor(cfg.Microphone),
		Observer:       bridge.Observer(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	previewURL := ""
	if ln, err := net.Listen("tcp", cfg.Addr); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Preview server disabled")
	} else {
		previewURL = "http://" + ln.Addr().String() + "/"
		srv := server.New(server.Options{Generator: gen, Store: store, BaseHTML: base})
		g.Go(func() error { return srv.Serve(gctx, ln) })
	}

	console, err := ui.New(ctx, ui.Options{
		Store:       store,
		Meeting:     ctrl,
		Bridge:      bridge,
		Exports:     exports,
		Keybindings: kb,
		PreviewURL:  previewURL,
		Version:     Version,
		Provider:    prov,
		ProviderID:  cfg.Provider,
	})
	if err != nil {
		return err
	}

	log.Info().Str("provider", cfg.Provider).Str("agent", cfg.Agent).Str("preview", previewURL).Msg("Meeting console started")
	_, runErr := tea.NewProgram(console, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(runErr, tea.ErrProgramKilled) {
		runErr = nil
	}

	if err := ctrl.EndMeeting(); err != nil && !errors.Is(err, session.ErrNotConnected) {
		log.Warn().Err(err).Msg("Failed to end meeting on exit")
	}
	cancel()
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("Preview server stopped with error")
	}
	return runErr
}

func runServe(ctx context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logs, err := config.InitLogging(cfg.DataDir(), false, cfg.Debug || config.CheckDebug())
	if err != nil {
		return err
	}
	defer logs.Close()

	gen, p, err := buildGenerator(cfg)
	if err != nil {
		return err
	}
	if p != nil {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.GenerationTimeout)
		if err := p.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("provider", cfg.Provider).Msg("Provider not reachable yet")
		}
		cancel()
	}

	base, err := seedHTML(ctx, cfg, gen)
	if err != nil {
		return err
	}

	log.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Starting generation server")
	return server.New(server.Options{Generator: gen, BaseHTML: base}).ListenAndServe(ctx, cfg.Addr)
}

func runMCP(ctx context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	// stdout carries the protocol, so logs go to stderr
	logs, err := config.InitLogging(cfg.DataDir(), false, cfg.Debug || config.CheckDebug())
	if err != nil {
		return err
	}
	defer logs.Close()

	gen, _, err := buildGenerator(cfg)
	if err != nil {
		return err
	}

	store := state.NewStore()
	defer store.Close()

	base, err := seedHTML(ctx, cfg, gen)
	if err != nil {
		return err
	}
	if err := store.SeedCanvas([]string{base}); err != nil {
		return err
	}

	d, err := dispatcher.New(gen, store)
	if err != nil {
		return err
	}
	return mcp.NewServer(d).Serve(ctx, os.Stdin, os.Stdout)
}

func printTools(w io.Writer) error {
	d, err := dispatcher.New(nil, nil)
	if err != nil {
		return err
	}
	for _, tool := range d.Tools() {
		raw, _ := d.Schema(tool.Name)
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err != nil {
			return fmt.Errorf("%s schema: %w", tool.Name, err)
		}
		fmt.Fprintf(w, "%s\n  %s\n%s\n\n", tool.Name, tool.Description, pretty.String())
	}
	return nil
}

func printKeys(w io.Writer, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	kb, err := config.LoadKeybindings(cfg.DataDir())
	if err != nil {
		return err
	}
	for _, action := range config.Actions() {
		fmt.Fprintf(w, "%-20s %s\n", action, kb.DisplayActionKey(action))
	}
	return nil
}
