package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/harunnryd/llmkit/internal/model"
	"github.com/harunnryd/llmkit/internal/model/contract"
	"github.com/harunnryd/llmkit/internal/model/validated"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"
)

type chatOptions struct {
	provider     string
	image        string
	imageURL     string
	pdf          string
	schema       string
	stdin        bool
	validateJSON bool
	thinking     bool
}

var chatOpts chatOptions

var thinkingLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send one chat message",
	Long:  `Send a user message, optionally with an image, image URL or PDF attachment, and print the reply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(cmd.InOrStdin(), args, chatOpts.stdin)
		if err != nil {
			return err
		}
		msg, err := buildUserMessage(prompt, chatOpts)
		if err != nil {
			return err
		}

		return executeWithRegistry(cmd, func(ctx context.Context, s *session) error {
			p, err := chatProvider(ctx, s, chatOpts)
			if err != nil {
				return err
			}

			resp, err := p.Chat(ctx, []contract.ChatMessage{msg})
			if err != nil {
				return err
			}
			return printChatResponse(cmd.OutOrStdout(), cmd.ErrOrStderr(), resp, chatOpts.thinking)
		})
	},
}

// chatProvider resolves the provider and applies --schema and JSON validation.
func chatProvider(ctx context.Context, s *session, opts chatOptions) (contract.Provider, error) {
	var (
		p   contract.Provider
		err error
	)
	if opts.schema != "" {
		p, err = providerWithSchema(ctx, s, opts.provider, opts.schema)
	} else {
		p, err = s.provider(opts.provider)
	}
	if err != nil {
		return nil, err
	}

	if opts.validateJSON || opts.schema != "" {
		p = validated.New(p, validated.Config{
			Validator:   validated.JSON,
			MaxAttempts: s.cfg.Validation.MaxAttempts,
		})
	}
	return p, nil
}

// providerWithSchema rebuilds a configured provider with a response schema.
func providerWithSchema(ctx context.Context, s *session, name, schemaPath string) (contract.Provider, error) {
	schema, err := contract.LoadStructuredOutputFormat(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	entry, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	b, _, err := model.BuilderFromEntry(ctx, entry, s.secrets)
	if err != nil {
		return nil, err
	}
	return b.Schema(schema).Build()
}

func buildUserMessage(prompt string, opts chatOptions) (contract.ChatMessage, error) {
	attachments := 0
	for _, v := range []string{opts.image, opts.imageURL, opts.pdf} {
		if v != "" {
			attachments++
		}
	}
	if attachments > 1 {
		return contract.ChatMessage{}, fmt.Errorf("--image, --image-url and --pdf are mutually exclusive")
	}

	b := contract.User().Content(prompt)
	switch {
	case opts.image != "":
		data, err := os.ReadFile(opts.image)
		if err != nil {
			return contract.ChatMessage{}, fmt.Errorf("failed to read image: %w", err)
		}
		mediaType := http.DetectContentType(data)
		mime, ok := contract.ImageMimeFromType(mediaType)
		if !ok {
			return contract.ChatMessage{}, fmt.Errorf("unsupported image type %s", mediaType)
		}
		b.Image(mime, data)
	case opts.imageURL != "":
		b.ImageURL(opts.imageURL)
	case opts.pdf != "":
		data, err := os.ReadFile(opts.pdf)
		if err != nil {
			return contract.ChatMessage{}, fmt.Errorf("failed to read pdf: %w", err)
		}
		b.PDF(data)
	}
	return b.Build(), nil
}

func printChatResponse(out, errOut io.Writer, resp contract.ChatResponse, showThinking bool) error {
	if showThinking {
		if thinking, ok := resp.Thinking(); ok {
			fmt.Fprintln(errOut, thinkingLabel.Render("thinking"))
			fmt.Fprintln(errOut, thinking)
		}
	}

	if text, ok := resp.Text(); ok {
		fmt.Fprintln(out, text)
	}

	if calls := resp.ToolCalls(); len(calls) > 0 {
		enc := json.NewEncoder(out)
		for _, call := range calls {
			if err := enc.Encode(call); err != nil {
				return fmt.Errorf("failed to encode tool call: %w", err)
			}
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatOpts.provider, "provider", "p", "", "configured provider name (default is models.default)")
	chatCmd.Flags().StringVar(&chatOpts.image, "image", "", "attach an image file")
	chatCmd.Flags().StringVar(&chatOpts.imageURL, "image-url", "", "attach an image by URL")
	chatCmd.Flags().StringVar(&chatOpts.pdf, "pdf", "", "attach a PDF file")
	chatCmd.Flags().StringVar(&chatOpts.schema, "schema", "", "structured output schema file; implies --validate-json")
	chatCmd.Flags().BoolVar(&chatOpts.stdin, "stdin", false, "read the prompt from stdin")
	chatCmd.Flags().BoolVar(&chatOpts.validateJSON, "validate-json", false, "re-ask until the reply is valid JSON")
	chatCmd.Flags().BoolVar(&chatOpts.thinking, "thinking", false, "print reasoning text to stderr when the backend returns it")
}
