package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/plotcraft/internal/generation"
	"github.com/zulandar/plotcraft/internal/progress"
	"github.com/zulandar/plotcraft/internal/role"
	"golang.org/x/term"
)

func newGenerateCmd() *cobra.Command {
	var (
		configPath string
		req        generation.Request
		live       bool
	)

	cmd := &cobra.Command{
		Use:   "generate <request>",
		Short: "Write one story in the terminal",
		Long: fmt.Sprintf(`Runs a full %s conversation for the request and prints
the approved story. When stdout is a terminal the conversation is streamed
as it is generated.`, strings.Join(role.Names(), "/")),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Request = strings.Join(args, " ")
			if !cmd.Flags().Changed("live") {
				live = isTerminal(cmd.OutOrStdout())
			}
			return runGenerate(cmd, configPath, req, live)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to PlotCraft config file")
	cmd.Flags().IntVar(&req.Pages, "pages", 0, "target length in pages (default from config)")
	cmd.Flags().StringVar(&req.Theme, "theme", "", "story theme: scp, fantasy, noir, scifi, cyberpunk, romance")
	cmd.Flags().StringVar(&req.Protagonist, "protagonist", "", "protagonist name")
	cmd.Flags().StringVar(&req.Model, "model", "", "generation model (default from config)")
	cmd.Flags().StringVar(&req.User, "user", os.Getenv("USER"), "owner recorded on the session")
	cmd.Flags().BoolVar(&live, "live", false, "stream the conversation (default: when stdout is a terminal)")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// consoleSink renders run events for a human watching the terminal.
type consoleSink struct {
	mu   sync.Mutex
	out  io.Writer
	live bool
}

func (c *consoleSink) Emit(_ context.Context, ev progress.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Type {
	case progress.TurnStart:
		if c.live {
			fmt.Fprintf(c.out, "\n== [%s] turn %d (%s) ==\n", ev.Speaker, ev.Turn, ev.Phase)
		}
	case progress.Chunk:
		if c.live {
			fmt.Fprint(c.out, ev.Content)
		}
	case progress.TurnEnd:
		if c.live {
			fmt.Fprintln(c.out)
		}
	case progress.Checkpoint, progress.Advisory:
		fmt.Fprintf(c.out, "\n-- %s: %s\n", ev.Type, ev.Content)
	case progress.Summary:
		if c.live {
			fmt.Fprintf(c.out, "\n%s\n", ev.Content)
		}
	}
	return nil
}

func runGenerate(cmd *cobra.Command, configPath string, req generation.Request, live bool) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nReceived %s, stopping after the current turn...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.service()
	if err != nil {
		return err
	}

	res, err := svc.Start(ctx, req, &consoleSink{out: out, live: live})
	if err != nil {
		return err
	}
	if !res.Completed {
		return fmt.Errorf("story %s was not completed (%s after %d turns)", res.SessionID, res.Outcome, res.Turns)
	}

	sess, err := svc.Resume(context.Background(), res.SessionID)
	if err != nil {
		return err
	}
	text, _ := sess.Story()
	fmt.Fprintf(out, "\n=== Story %s (version %d) ===\n\n%s\n", sess.ID, sess.CurrentVersion, text)
	return nil
}
