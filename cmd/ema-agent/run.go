package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-agent/core"
	"github.com/koscakluka/ema-agent/core/conversations"
	"github.com/koscakluka/ema-agent/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-agent/internal/config"
	"github.com/koscakluka/ema-agent/internal/platform"
	"github.com/koscakluka/ema-agent/internal/telemetry"
	"github.com/koscakluka/ema-agent/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const telemetryShutdownTimeout = 5 * time.Second

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the assistant",
		Args:  cobra.NoArgs,
		RunE:  runAgent,
	}
	cmd.Flags().Bool("no-tui", false, "Print the conversation instead of showing the terminal UI")
	cmd.Flags().Bool("text-only", false, "Disable the microphone and speakers, type to talk")
	return cmd
}

func runAgent(cmd *cobra.Command, _ []string) error {
	noTUI, _ := cmd.Flags().GetBool("no-tui")
	textOnly, _ := cmd.Flags().GetBool("text-only")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	providers, err := telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), telemetryShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "telemetry:", err)
		}
	}()

	reasoner, err := newReasoner(cfg.Reasoning)
	if err != nil {
		return err
	}

	log := conversations.NewLog(conversations.DefaultReplayLimit)
	desktop := platform.NewDesktop()
	router := newRouter(cfg, desktop, log)

	options := append(agentOptions(cfg),
		orchestration.WithReasoner(reasoner),
		orchestration.WithActionRouter(router),
		orchestration.WithLog(log),
		orchestration.WithWebContext(desktop.LastWebPage),
		orchestration.WithDeviceSummary(desktop.Summary),
	)

	if !textOnly {
		devices, err := openAudio(cfg.Audio)
		if err != nil {
			return err
		}
		defer devices.Close()

		chain := newSpeechChain(cfg, devices.playback)
		defer chain.Close()
		options = append(options, orchestration.WithSpeaker(chain))

		if cfg.Listen.APIKey != "" {
			options = append(options, orchestration.WithListener(
				deepgram.NewListener(cfg.Listen.APIKey, devices.capture, deepgram.WithModel(cfg.Listen.Model))))
		} else {
			logger.Warn("listen.api_key is not set, voice input is disabled")
		}
	}

	agent := orchestration.NewAgent(options...)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return agent.Run(ctx)
	})

	if noTUI {
		g.Go(func() error {
			printLog(ctx, agent.Log(), cmd.OutOrStdout())
			return nil
		})
		// reading stdin cannot be interrupted, so it stays outside the group
		go readInput(agent, cmd.InOrStdin())
	} else {
		model := tui.NewModel(agent)
		defer model.Close()

		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		g.Go(func() error {
			defer agent.Stop()
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("error running terminal ui: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func agentOptions(cfg *config.Config) []orchestration.AgentOption {
	options := []orchestration.AgentOption{
		orchestration.WithLanguage(cfg.Agent.Language),
		orchestration.WithHistoryLimit(cfg.Agent.HistoryLimit),
		orchestration.WithTimings(orchestration.Timings{
			TrailingSilence: cfg.Listen.TrailingSilence,
			ListenWindow:    cfg.Listen.Window,
			ChatTimeout:     cfg.Reasoning.Timeout,
			SpeakPause:      cfg.Agent.SpeakPause,
		}),
	}
	if cfg.Agent.SystemPrompt != "" {
		options = append(options, orchestration.WithSystemPrompt(cfg.Agent.SystemPrompt))
	}
	if cfg.Agent.Greeting != "" {
		options = append(options, orchestration.WithGreeting(cfg.Agent.Greeting))
	}
	if len(cfg.Agent.ShutdownPhrases) > 0 {
		options = append(options, orchestration.WithShutdownPhrases(cfg.Agent.ShutdownPhrases...))
	}
	return options
}

func printLog(ctx context.Context, log *conversations.Log, out io.Writer) {
	entries, unsubscribe := log.Subscribe()
	defer unsubscribe()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			fmt.Fprintf(out, "%s [%s] %s\n", entry.Timestamp.Format(time.TimeOnly), entry.Sender, entry.Text)
		case <-ctx.Done():
			return
		}
	}
}

func readInput(agent *orchestration.Agent, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if text := scanner.Text(); text != "" && !agent.SubmitText(text) {
			fmt.Fprintln(os.Stderr, "busy, input dropped")
		}
	}
}
