package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/sosadtsia/infrabot/internal/ansible"
	"github.com/sosadtsia/infrabot/internal/cli"
	"github.com/sosadtsia/infrabot/internal/governance"
	"github.com/sosadtsia/infrabot/internal/journal"
	"github.com/sosadtsia/infrabot/internal/memory"
	"github.com/sosadtsia/infrabot/internal/observability"
	"github.com/sosadtsia/infrabot/internal/orchestrator"
	"github.com/sosadtsia/infrabot/internal/pipeline"
	"github.com/sosadtsia/infrabot/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath   string
		model     string
		inventory string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "infrabot [task...]",
		Short: "AI-powered DevOps assistant",
		Long: `infrabot turns plain-English infrastructure tasks into Ansible
automation. With no arguments it starts an interactive shell; with
arguments it runs a single task and exits.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if model != "" {
				cfg.Model.Name = model
			}
			if inventory != "" {
				cfg.Ansible.Inventory = inventory
			}
			if verbose {
				cfg.Verbose = true
			}
			return run(cmd.Context(), cfg, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Ollama model to use")
	cmd.Flags().StringVarP(&inventory, "inventory", "i", "", "Ansible inventory file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func run(parent context.Context, cfg *config.Config, task string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg.Verbose)
	defer logger.Sync() //nolint:errcheck

	observability.PrintBanner(cfg.Model.Name)

	embed := chromem.NewEmbeddingFuncOllama(cfg.Model.EmbedModel, cfg.Model.BaseURL+"/api")
	store, err := memory.New(cfg.Memory.Path, cfg.Memory.Compress, embed, logger)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}

	llm, err := ollama.New(
		ollama.WithModel(cfg.Model.Name),
		ollama.WithServerURL(cfg.Model.BaseURL),
	)
	if err != nil {
		return fmt.Errorf("connect to model: %w", err)
	}

	runner, err := ansible.NewRunner(
		cfg.Ansible.Inventory,
		time.Duration(cfg.Ansible.AdHocTimeoutSecs)*time.Second,
		time.Duration(cfg.Ansible.PlaybookTimeoutSecs)*time.Second,
		logger,
	)
	if err != nil {
		return fmt.Errorf("set up ansible: %w", err)
	}
	defer runner.Close()

	jnl, err := journal.New(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jnl.Close()

	orch := orchestrator.New(orchestrator.Deps{
		Store:    store,
		Reasoner: pipeline.New(llm, logger),
		Executor: runner,
		Policy:   governance.NewDefaultPolicyEngine(),
		Journal:  jnl,
		Logger:   logger,
	})

	if task != "" {
		return runOnce(ctx, orch, task)
	}
	return cli.New(orch, jnl, os.Stdin, os.Stdout, logger).Run(ctx)
}

func runOnce(ctx context.Context, orch *orchestrator.Orchestrator, task string) error {
	result := orch.Run(ctx, task)
	if out := strings.TrimSpace(result.Output); out != "" {
		fmt.Println(out)
	}
	if !result.Success {
		return fmt.Errorf("task failed: %s", result.Error)
	}
	return nil
}
