package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/plotcraft/internal/db"
	"github.com/zulandar/plotcraft/internal/session"
	"github.com/zulandar/plotcraft/internal/story"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect stored story sessions",
	}

	cmd.AddCommand(newSessionShowCmd())
	return cmd
}

func newSessionShowCmd() *cobra.Command {
	var (
		configPath string
		showStory  bool
		showLog    bool
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session's status, drafts and story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionShow(cmd, configPath, args[0], showStory, showLog)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to PlotCraft config file")
	cmd.Flags().BoolVar(&showStory, "story", true, "print the current story text")
	cmd.Flags().BoolVar(&showLog, "messages", false, "print the conversation transcript")
	return cmd
}

func runSessionShow(cmd *cobra.Command, configPath, id string, showStory, showLog bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)

	store, err := session.NewStore(session.StoreOpts{DB: gormDB, TTL: cfg.Sessions.TTL})
	if err != nil {
		return err
	}
	defer store.Stop()

	sess, err := store.Recover(context.Background(), id)
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	printSession(cmd, sess, showStory, showLog)
	return nil
}

func printSession(cmd *cobra.Command, sess session.Session, showStory, showLog bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:   %s\n", sess.ID)
	if sess.UserRef != "" {
		fmt.Fprintf(out, "User:      %s\n", sess.UserRef)
	}
	fmt.Fprintf(out, "Status:    %s\n", sess.Status)
	fmt.Fprintf(out, "Theme:     %s (%d pages, ~%d words)\n", sess.Config.Theme, sess.Config.PageLimit, sess.Config.TotalWords())
	fmt.Fprintf(out, "Model:     %s\n", sess.Config.Model)
	fmt.Fprintf(out, "Created:   %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))
	if sess.CompletedAt != nil {
		fmt.Fprintf(out, "Completed: %s\n", sess.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "Messages:  %d\n", len(sess.Messages))
	fmt.Fprintf(out, "Drafts:    %d\n", len(sess.Drafts))
	for _, d := range sess.Drafts {
		words := 0
		if text, ok := story.Extract(d.Content); ok {
			words = story.WordCount(text)
		}
		fmt.Fprintf(out, "  v%-3d %5d words  %s\n", d.Version, words, d.CreatedAt.Format("15:04:05"))
	}

	if showLog && len(sess.Messages) > 0 {
		fmt.Fprintln(out, "\nTranscript:")
		for _, m := range sess.Messages {
			fmt.Fprintf(out, "\n## [%s] turn %d (%s)\n%s\n", m.Speaker, m.Turn, m.Phase, strings.TrimSpace(m.Content))
		}
	}

	if showStory {
		if text, ok := sess.Story(); ok {
			fmt.Fprintf(out, "\n%s\n", text)
		} else {
			fmt.Fprintln(out, "\n(no story yet)")
		}
	}
}
