// Command cli is a terminal client for the ragrouter HTTP and WebSocket APIs.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

type rootOptions struct {
	addr   string
	apiKey string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "ragrouter-cli",
		Short:        "Chat with documents and databases through a ragrouter server",
		SilenceUsage: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&opts.addr, "addr", envOr("RAGROUTER_ADDR", "http://localhost:8080"), "server base URL")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("API_KEY"), "API key sent as X-API-Key")

	root.AddCommand(newChatCmd(opts), newUploadCmd(opts), newHistoryCmd(opts))
	return root
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		mode      string
		sessionID string
		useWS     bool
	)
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask a question; without a message, read questions from stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewClient(opts.addr, opts.apiKey)
			ctx := cmd.Context()
			printer := &eventPrinter{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}

			var send func(domain.ChatRequest) error
			if useWS {
				conn, err := client.DialChat(ctx)
				if err != nil {
					return err
				}
				defer conn.Close()
				send = func(req domain.ChatRequest) error {
					return conn.Send(req, printer.handle)
				}
			} else {
				send = func(req domain.ChatRequest) error {
					sid, err := client.Chat(ctx, req, printer.handle)
					if sid != "" && sid != sessionID {
						sessionID = sid
						fmt.Fprintf(cmd.ErrOrStderr(), "[session %s]\n", sid)
					}
					return err
				}
			}

			ask := func(message string) error {
				return send(domain.ChatRequest{
					SessionID: sessionID,
					Message:   message,
					Mode:      domain.Mode(mode),
				})
			}

			if len(args) == 1 {
				return ask(args[0])
			}

			sc := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(cmd.ErrOrStderr(), "> ")
				if !sc.Scan() {
					return sc.Err()
				}
				line := strings.TrimSpace(sc.Text())
				if line == "" {
					continue
				}
				if line == "/quit" {
					return nil
				}
				if err := ask(line); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
				if ctx.Err() != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(domain.ModeAuto), "routing mode: auto, document_qa or structured_query")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue")
	cmd.Flags().BoolVar(&useWS, "ws", false, "stream over the WebSocket endpoint")
	return cmd
}

func newUploadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document for question answering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := NewClient(opts.addr, opts.apiKey).Upload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", resp.DocumentID, resp.Status, resp.Message)
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <session>",
		Short: "Print the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := NewClient(opts.addr, opts.apiKey).History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, m := range resp.Messages {
				route := ""
				if m.RouteDecision != "" {
					route = " (" + string(m.RouteDecision) + ")"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s%s: %s\n", m.CreatedAt.Format("15:04:05"), m.Role, route, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of messages")
	return cmd
}

// eventPrinter writes tokens to out and everything else to errOut.
type eventPrinter struct {
	out    io.Writer
	errOut io.Writer
}

func (p *eventPrinter) handle(ev domain.StreamEvent) error {
	switch ev.Type {
	case domain.StreamEventMetadata:
		if ev.Metadata != nil {
			fmt.Fprintf(p.errOut, "[route: %s] %s\n", ev.Metadata.Route, ev.Metadata.Reasoning)
		}
	case domain.StreamEventToken:
		fmt.Fprint(p.out, ev.Content)
	case domain.StreamEventDone:
		fmt.Fprintln(p.out)
	case domain.StreamEventError:
		fmt.Fprintln(p.out)
		return fmt.Errorf("server: %s", ev.Content)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
