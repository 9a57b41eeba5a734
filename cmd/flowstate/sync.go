package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flowstate-go/internal/app"
	"flowstate-go/internal/flow"
)

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the data root between devices",
}

var syncInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Make the data root a git working tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("SyncInit", func(a *app.FlowApp) error {
			res, err := a.InitSync(cmd.Context())
			if err != nil {
				return fmt.Errorf("initializing sync: %w", err)
			}
			if res.AlreadyInitialized {
				fmt.Printf("Already initialized: %s\n", res.Path)
				return nil
			}
			fmt.Printf("Initialized %s\n", res.Path)
			if res.Commit != nil {
				fmt.Printf("Initial commit: %s\n", res.Commit.ShortHash)
			}
			return nil
		})
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("SyncStatus", func(a *app.FlowApp) error {
			report, err := a.SyncStatus(cmd.Context())
			if err != nil {
				return err
			}
			if !report.Initialized {
				fmt.Println("Not initialized. Run `flowstate sync init` or `flowstate sync clone URL`.")
				return nil
			}

			remote := "(none)"
			if report.HasRemote {
				remote = report.RemoteURL
			}
			fmt.Printf("Branch:    %s\n", report.Branch)
			fmt.Printf("Remote:    %s\n", remote)
			fmt.Printf("Pending:   %d change(s)\n", report.PendingChanges)
			if report.LastCommit != nil {
				fmt.Printf("Last:      %s %s\n", report.LastCommit.ShortHash, report.LastCommit.Message)
			}
			fmt.Printf("Last sync: %s\n", ago(report.LastSyncAt))
			if report.HasConflicts {
				fmt.Println("Conflicts: the last sync hit a conflict")
			}
			return nil
		})
	},
}

var syncRemoteCmd = &cobra.Command{
	Use:   "remote URL",
	Short: "Set the remote repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("SyncRemote", func(a *app.FlowApp) error {
			res, err := a.SetRemote(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("setting remote: %w", err)
			}
			fmt.Printf("Remote %s: %s\n", res.Action, res.URL)
			return nil
		})
	},
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Commit, pull and push the data root",
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		return withApp("Sync", func(a *app.FlowApp) error {
			outcome, err := a.Sync(cmd.Context(), message)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			fmt.Println(describeOutcome(outcome))
			return nil
		})
	},
}

var syncCloneCmd = &cobra.Command{
	Use:   "clone URL",
	Short: "Clone an existing data repository into the data root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		a, res, err := app.CloneDataRoot(cmd.Context(), cfg, args[0])
		if err != nil {
			return fmt.Errorf("clone failed: %w", err)
		}
		defer a.Close()

		fmt.Printf("Cloned into %s\n", res.Path)
		if res.Commit != nil {
			fmt.Printf("HEAD: %s %s\n", res.Commit.ShortHash, res.Commit.Message)
		}
		return nil
	},
}

var syncHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "View commit history of the data root",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp("SyncHistory", func(a *app.FlowApp) error {
			commits, err := a.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(commits) == 0 {
				fmt.Println("No commits.")
				return nil
			}

			width := terminalWidth()
			for _, c := range commits {
				if c.Hash == "" {
					fmt.Println(truncate(c.Raw, width))
					continue
				}
				line := fmt.Sprintf("%s  %-19s  %-16s  %s", c.ShortHash, c.Date, truncate(c.Author, 16), c.Message)
				fmt.Println(truncate(line, width))
			}
			return nil
		})
	},
}

var syncLogCmd = &cobra.Command{
	Use:   "log",
	Short: "View the sync operation log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp("SyncLog", func(a *app.FlowApp) error {
			entries, err := a.SyncCoordinator().SyncLog(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No sync operations recorded.")
				return nil
			}

			for _, e := range entries {
				commit := "-"
				if e.CommitHash != nil && len(*e.CommitHash) >= 7 {
					commit = (*e.CommitHash)[:7]
				}
				fmt.Printf("#%d  %-10s  %s  %-20s  %s  %s\n",
					e.ID,
					e.Operation,
					e.CreatedAt.Format("2006-01-02 15:04:05"),
					e.Status,
					commit,
					orDash(e.ErrorMessage),
				)
			}
			return nil
		})
	},
}

var syncDeviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Show this device's sync identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("SyncDevice", func(a *app.FlowApp) error {
			status, err := a.SyncCoordinator().RegisterDevice(a.Config().DeviceName)
			if err != nil {
				return err
			}
			fmt.Printf("Device:      %s\n", status.DeviceName)
			fmt.Printf("Device ID:   %s\n", status.DeviceID)
			fmt.Printf("Remote:      %s\n", orDash(status.RemoteURL))
			fmt.Printf("Last sync:   %s (%s)\n", ago(status.LastSyncAt), orDash(status.LastSyncCommit))
			fmt.Printf("Pending:     %d\n", status.PendingChanges)
			fmt.Printf("Conflicts:   %v\n", status.HasConflicts)
			return nil
		})
	},
}

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync automatically whenever the data root changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withApp("Watch", func(a *app.FlowApp) error {
			fmt.Printf("Watching %s (Ctrl-C to stop)\n", a.Config().DataRoot)
			return a.Watch(ctx, func(outcome flow.SyncOutcome, err error) {
				if err != nil {
					fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
					return
				}
				fmt.Println(describeOutcome(outcome))
			})
		})
	},
}

func init() {
	syncCmd.AddCommand(syncInitCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncRemoteCmd)
	syncCmd.AddCommand(syncRunCmd)
	syncRunCmd.Flags().StringP("message", "m", "", "Commit message (default: timestamped)")
	syncCmd.AddCommand(syncCloneCmd)
	syncCmd.AddCommand(syncHistoryCmd)
	syncHistoryCmd.Flags().IntP("limit", "n", 20, "Maximum number of commits to show")
	syncCmd.AddCommand(syncLogCmd)
	syncLogCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	syncCmd.AddCommand(syncDeviceCmd)
	syncCmd.AddCommand(syncWatchCmd)
}
