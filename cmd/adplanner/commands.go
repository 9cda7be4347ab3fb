package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/radicai/ad-agent-api/internal/config"
	"github.com/radicai/ad-agent-api/internal/planner"
	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/radicai/ad-agent-api/pkg/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// globalFlags override the environment configuration.
type globalFlags struct {
	knowledgeBase   string
	scoringPolicy   string
	guardrailPolicy string
	verbose         bool
}

func newRootCmd() *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:   "adplanner",
		Short: "Plan, draft and validate ad campaigns from a brief",
		Long: `adplanner runs the ad planning pipeline without the HTTP server.

Briefs and plans are JSON files; pass "-" to read from stdin.
Configuration comes from the environment and .env, as for the server.

Examples:
  # Show the grounding block a brief would receive
  adplanner context brief.json

  # Validate a hand-written plan against the knowledge base
  adplanner validate brief.json plan.json --strict

  # Build a template plan without calling a model
  adplanner draft brief.json`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr(), gf.verbose)
		},
	}

	root.PersistentFlags().StringVar(&gf.knowledgeBase, "kb", "", "Knowledge base JSON file (default $KNOWLEDGE_BASE_PATH)")
	root.PersistentFlags().StringVar(&gf.scoringPolicy, "scoring-policy", "", "Scoring policy YAML file")
	root.PersistentFlags().StringVar(&gf.guardrailPolicy, "guardrail-policy", "", "Guardrail policy YAML file")
	root.PersistentFlags().BoolVarP(&gf.verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	root.AddCommand(
		newContextCmd(&gf),
		newDraftCmd(&gf),
		newValidateCmd(&gf),
		newGenerateCmd(&gf),
	)
	return root
}

// ── context ─────────────────────────────────────────────────

func newContextCmd(gf *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "context <brief.json>",
		Short: "Show the knowledge base grounding for a brief",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(gf)
			if err != nil {
				return err
			}
			brief, err := readBrief(cmd, args[0])
			if err != nil {
				return err
			}

			g, err := p.Retriever.Ground(cmd.Context(), brief)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), g)
			}
			if g.Empty() {
				fmt.Fprintln(cmd.ErrOrStderr(), "No knowledge base match for this brief")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), g.Text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print product, metrics and context as JSON")
	return cmd
}

// ── draft ───────────────────────────────────────────────────

func newDraftCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "draft <brief.json>",
		Short: "Build and evaluate a template plan without calling a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(gf)
			if err != nil {
				return err
			}
			brief, err := readBrief(cmd, args[0])
			if err != nil {
				return err
			}

			eval, err := p.Planner.Evaluate(cmd.Context(), brief, planner.DraftPlan(brief))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), eval)
		},
	}
}

// ── validate ────────────────────────────────────────────────

func newValidateCmd(gf *globalFlags) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <brief.json> <plan.json>",
		Short: "Finalize, score and check an existing plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(gf)
			if err != nil {
				return err
			}
			brief, err := readBrief(cmd, args[0])
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			plan, err := planner.ParsePlan(data)
			if err != nil {
				return err
			}

			eval, err := p.Planner.Evaluate(cmd.Context(), brief, plan)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), eval); err != nil {
				return err
			}
			if strict && len(eval.ValidationErrors) > 0 {
				return fmt.Errorf("plan has %d validation error(s)", len(eval.ValidationErrors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the plan has validation errors")
	return cmd
}

// ── generate ────────────────────────────────────────────────

func newGenerateCmd(gf *globalFlags) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "generate <brief.json>",
		Short: "Generate a plan with the configured model providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(gf)
			if err != nil {
				return err
			}
			brief, err := readBrief(cmd, args[0])
			if err != nil {
				return err
			}

			res, err := p.Planner.Generate(cmd.Context(), brief, planner.Options{Model: model})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "request %s: %s/%s in %dms, %d tokens\n",
				res.Metrics.RequestID, res.Metrics.Provider, res.Metrics.Model,
				res.Metrics.Latency, res.Metrics.Tokens.Total)
			return writeJSON(cmd.OutOrStdout(), res.Plan)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Override the primary provider's model")
	return cmd
}

// ── Helpers ─────────────────────────────────────────────────

func buildPipeline(gf *globalFlags) (*server.Pipeline, error) {
	cfg := config.Load()
	if gf.knowledgeBase != "" {
		cfg.KnowledgeBasePath = gf.knowledgeBase
	}
	if gf.scoringPolicy != "" {
		cfg.ScoringPolicyPath = gf.scoringPolicy
	}
	if gf.guardrailPolicy != "" {
		cfg.GuardrailPolicyPath = gf.guardrailPolicy
	}
	return server.BuildPipeline(cfg)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func readBrief(cmd *cobra.Command, path string) (*models.Brief, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	return planner.ParseBrief(data)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogging(w io.Writer, verbose bool) {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}
