package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/answer"
	"github.com/Aman-CERP/docrag/internal/output"
)

type askOptions struct {
	topK        int
	model       string
	contextOnly bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <corpus> <question>",
		Short: "Answer a question from a corpus with a chat model",
		Long: `Retrieve the top-K rows for the question and ask a chat model to answer
using only that context. When nothing is retrieved the model is not called.

Requires an OpenAI-compatible API key (OPENAI_API_KEY or DOCRAG_OPENAI_API_KEY)
unless --context-only is given.`,
		Example: `  docrag ask guide "How do I rotate the logs?"
  docrag ask guide "What does the cache store?" --context-only`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAsk(ctx, cmd, args[0], strings.Join(args[1:], " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of context rows (default: retrieval.top_k)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Chat model (default: answer.model)")
	cmd.Flags().BoolVar(&opts.contextOnly, "context-only", false, "Print the retrieved context without calling the model")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, name, question string, opts askOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	s, c, err := openSearcher(cfg, e, name, queryOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	contextText, _, err := s.Context(ctx, question, opts.topK)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.contextOnly {
		out.Text(contextText)
		return nil
	}

	var g answer.Generator
	if strings.TrimSpace(contextText) != "" {
		model := cfg.Answer.Model
		if opts.model != "" {
			model = opts.model
		}
		g, err = answer.NewOpenAIGenerator(answer.OpenAIConfig{
			APIKey:      cfg.Embeddings.APIKey,
			BaseURL:     cfg.Embeddings.OpenAIBaseURL,
			Model:       model,
			Temperature: float32(cfg.Answer.Temperature),
		})
		if err != nil {
			return err
		}
	}

	text, err := answer.Ask(ctx, g, cfg.Answer.SystemPrompt, question, contextText)
	if err != nil {
		return err
	}
	out.Text(text)
	return nil
}
