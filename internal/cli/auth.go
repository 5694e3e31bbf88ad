package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/portal-notify/internal/session"
	"github.com/nhle/portal-notify/internal/store"
	"github.com/nhle/portal-notify/internal/ui/login"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the portal and store the session in the keyring",
	Long: `Logs in with a portal staff account. Without --password an
interactive form asks for the credentials.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session and the local notification mirror",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "portal username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "portal password")
}

func runLogin(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	creds := login.SubmitMsg{Username: loginUsername, Password: loginPassword}
	if creds.Username == "" || creds.Password == "" {
		creds, err = login.Prompt(loginUsername)
		if err != nil {
			return fmt.Errorf("reading credentials: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.API.Timeout)
	defer cancel()

	sess, err := rt.client.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return err
	}
	if err := rt.sessions.Login(sess); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	rt.log.Info().Str("user", sess.User.Username).Msg("logged in")
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", sess.User.Username, session.PrimaryRole(sess))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.sessions.Logout(); err != nil {
		return err
	}

	mirror, err := store.NewSQLiteStore(rt.cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening local mirror: %w", err)
	}
	defer mirror.Close()

	ctx := cmd.Context()
	if err := mirror.ClearNotifications(ctx); err != nil {
		return err
	}
	if err := mirror.SetMeta(ctx, store.MetaUnreadCount, "0"); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}
