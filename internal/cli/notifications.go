package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/notify"
	"github.com/nhle/portal-notify/internal/portal"
	"github.com/nhle/portal-notify/internal/theme"
)

var (
	historyPage int
	historySize int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List notification history from the portal",
	RunE:  runHistory,
}

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Print the unread notification count",
	RunE:  runUnread,
}

var readCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark one notification read",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

var postCmd = &cobra.Command{
	Use:   "post <type> <reference> [message...]",
	Short: "Record a notification for an action you performed",
	Long: `Adds a local notification for an action taken outside the portal UI
and saves it to the portal right away. Inside watch, the ":note" command
does the same and shows the portal's broadcast of it as a toast only.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPost,
}

var readAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification read",
	RunE:  runReadAll,
}

func init() {
	historyCmd.Flags().IntVar(&historyPage, "page", 0, "page number, starting at 0")
	historyCmd.Flags().IntVar(&historySize, "size", notify.RefreshPageSize, "page size")
}

// withClient bootstraps, checks the session and runs fn with a bounded
// context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	rt, err := bootstrap(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.requireSession(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.API.Timeout)
	defer cancel()

	err = fn(ctx, rt)
	if portal.IsAuthError(err) {
		return fmt.Errorf("%s: %w", notify.SessionExpiredMessage, err)
	}
	return err
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyPage < 0 || historySize <= 0 {
		return fmt.Errorf("invalid page %d / size %d", historyPage, historySize)
	}
	return withClient(cmd, func(ctx context.Context, rt *runtime) error {
		page, err := rt.client.ListNotifications(ctx, portal.PageRequest{
			Page: historyPage,
			Size: historySize,
			Sort: "createdAt,desc",
		})
		if err != nil {
			return err
		}
		renderHistory(cmd.OutOrStdout(), page, time.Now())
		return nil
	})
}

func runUnread(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, rt *runtime) error {
		n, err := rt.client.UnreadCount(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	})
}

func runPost(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.requireSession(); err != nil {
		return err
	}
	ns, err := rt.openStore(cmd.Context())
	if err != nil {
		return err
	}

	id, ok := ns.Post(args[0], args[1], strings.Join(args[2:], " "))
	if !ok {
		return fmt.Errorf("a %s notification for %s was recorded moments ago", model.NormalizeType(args[0]), args[1])
	}
	ns.FlushSaves()

	n, _ := ns.Get(id)
	if !n.Synced {
		return fmt.Errorf("notification kept locally but not saved to the portal, see %s", rt.cfg.Log.File)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Posted %s for %s\n", n.Type, n.ContractID)
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, rt *runtime) error {
		return rt.client.MarkRead(ctx, args[0])
	})
}

func runReadAll(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, rt *runtime) error {
		return rt.client.MarkAllRead(ctx)
	})
}

// renderHistory prints one page of history as a table.
func renderHistory(w io.Writer, page *portal.Page, now time.Time) {
	if len(page.Content) == 0 {
		fmt.Fprintln(w, "No notifications.")
		return
	}

	rows := make([][]string, 0, len(page.Content))
	for _, dto := range page.Content {
		n := dto.ToNotification(false)
		mark := "•"
		if !n.IsUnread() {
			mark = ""
		}
		rows = append(rows, []string{
			mark,
			n.ID,
			notify.TimeAgo(n.Timestamp, now),
			notify.DisplayTitle(n),
			notify.DisplayMessage(n),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("", "ID", "WHEN", "TITLE", "MESSAGE").
		Rows(rows...)

	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "page %d/%d, %d total\n", page.Number+1, max(page.TotalPages, 1), page.TotalElements)
}

// formatLine renders a record on one line for the headless watcher.
func formatLine(title, message, route string, at time.Time) string {
	parts := []string{at.Local().Format("2006-01-02 15:04:05"), title}
	if message != "" {
		parts = append(parts, message)
	}
	if route != "" {
		parts = append(parts, route)
	}
	return strings.Join(parts, "  ")
}
