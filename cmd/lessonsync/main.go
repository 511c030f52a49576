// Command lessonsync is the classroom synchronization client: it joins a
// live session for a lesson and mirrors the teacher's navigation state.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lessonsync/internal/client"
	"lessonsync/internal/config"
	"lessonsync/internal/journal"
	"lessonsync/pkg/types"
)

var (
	flagConfig string
	flagToken  string
	flagRole   string

	flagLesson  int64
	flagStudent int64

	flagSession int64
	flagLimit   int
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "lessonsync",
		Short:         "Real-time classroom synchronization client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", os.Getenv("LESSONSYNC_CONFIG_FILE"), "path to JSON config file")
	root.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("LESSONSYNC_TOKEN"), "bearer token for the platform")
	root.PersistentFlags().StringVar(&flagRole, "role", types.RoleStudent, "connection role (student, teacher, admin)")

	root.AddCommand(newWatchCommand())
	root.AddCommand(newHistoryCommand())
	return root
}

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join the live session for a lesson and mirror its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch()
		},
	}
	cmd.Flags().Int64Var(&flagLesson, "lesson", 0, "lesson id to watch")
	cmd.Flags().Int64Var(&flagStudent, "student", 0, "student id joining the session")
	_ = cmd.MarkFlagRequired("lesson")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled events for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory()
		},
	}
	cmd.Flags().Int64Var(&flagSession, "session", 0, "session id")
	cmd.Flags().IntVar(&flagLimit, "limit", 50, "maximum events to show")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// runWatch joins a session and prints state transitions until interrupted.
// Signal handling mirrors the platform services: SIGINT/SIGTERM trigger a
// graceful leave so no timers or participation records are left behind.
func runWatch() error {
	cfg := config.LoadConfigWithPrecedence(flagConfig)

	jnl, err := journal.NewManager(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() {
		if err := jnl.Close(); err != nil {
			log.Printf("Journal close error: %v", err)
		}
	}()

	c, err := client.New(cfg, flagToken, flagRole, jnl)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	done := make(chan struct{})
	c.SetNoticeHandler(func(notice string) {
		fmt.Println(notice)
		close(done)
	})
	c.Projector().Emitter().OnSnapshot(func(s *types.SessionSnapshot) {
		cell := "none"
		if id := s.EffectiveDisplayCellID(); id != nil {
			cell = fmt.Sprintf("%d", *id)
		}
		fmt.Printf("session=%d status=%s cell=%s orders=%v mode=%s\n",
			s.SessionID, s.Status, cell, s.DisplayOrders, s.DisplayMode)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx, flagLesson, flagStudent); err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalCh:
		log.Printf("Received signal %v, leaving session", sig)
	case <-done:
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return c.Stop(stopCtx)
}

// runHistory prints the journaled events for one session, newest first.
func runHistory() error {
	cfg := config.LoadConfigWithPrecedence(flagConfig)

	jnl, err := journal.NewManager(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer jnl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := jnl.RecentEvents(ctx, flagSession, flagLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no journaled events for session", flagSession)
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-24s v%-4d %s\n",
			e.ReceivedAt.Local().Format("2006-01-02 15:04:05"), e.Type, e.Version, e.Payload)
	}
	return nil
}
