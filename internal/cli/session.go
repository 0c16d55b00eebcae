package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Long: `End the current session on the server and discard the stored cookies
and cached profile. Local state is cleared even when the server cannot be
reached, so logout always succeeds from the client's point of view.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, creds, err := apiClient()
		if err != nil {
			return err
		}
		manager := sessionManager(client, creds)

		if err := manager.Logout(); err != nil {
			return err
		}
		if err := saveCredentials(creds); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]int{"result": 1})
		} else {
			okLabel.Println("✓ Logged out")
		}
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Long: `Show the logged-in user. The cached profile is shown immediately when
present; the session is then verified against the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, creds, err := apiClient()
		if err != nil {
			return err
		}
		manager := sessionManager(client, creds)

		status := manager.Bootstrap()
		user := manager.User()

		if jsonOutput {
			printJSON(map[string]any{
				"status": string(status),
				"user":   user,
			})
			return nil
		}

		if user == nil {
			fmt.Println("Not logged in.")
			return ErrAlreadyHandled
		}
		fmt.Printf("Username: %s\n", user.Username)
		if user.Email != "" {
			fmt.Printf("Email: %s\n", user.Email)
		}
		if user.Role != "" {
			fmt.Printf("Role: %s\n", user.Role)
		}
		if user.IsSuperuser {
			fmt.Println("Superuser: yes")
		}
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the current session",
	Long: `Refresh the current session, extending its lifetime and updating the
cached profile. A failed refresh clears local session state the same way
logout does.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, creds, err := apiClient()
		if err != nil {
			return err
		}
		manager := sessionManager(client, creds)

		refreshErr := manager.Refresh()
		if err := saveCredentials(creds); err != nil {
			return err
		}
		if refreshErr != nil {
			return fmt.Errorf("session refresh failed: %w", refreshErr)
		}

		if jsonOutput {
			printJSON(map[string]any{"result": 1, "user": manager.User()})
		} else {
			okLabel.Println("✓ Session refreshed")
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check whether the stored session is still valid",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, creds, err := apiClient()
		if err != nil {
			return err
		}
		manager := sessionManager(client, creds)

		ok := manager.Verify()
		if jsonOutput {
			printJSON(map[string]bool{"valid": ok})
			if !ok {
				return ErrAlreadyHandled
			}
			return nil
		}
		if ok {
			okLabel.Println("✓ Session is valid")
			return nil
		}
		fmt.Println("Session is not valid. Log in with \"opsdeck login\".")
		return ErrAlreadyHandled
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(verifyCmd)
}
