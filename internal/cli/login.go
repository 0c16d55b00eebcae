package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newLoginCmd creates and returns a new login command
func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the OpsDeck server",
		Long: `Login to the OpsDeck server and store the session cookies locally.
Subsequent commands reuse the stored session until it expires or you log out.

Accounts with two-factor auth enabled must pass the one-time code with --otp.

Example:
  opsdeck login --username alice --password s3cret
  opsdeck login --username alice --password s3cret --otp 123456`,
		RunE: runLogin,
	}

	cmd.Flags().StringP("username", "u", "", "Username for authentication")
	cmd.Flags().StringP("password", "p", "", "Password for authentication")
	cmd.Flags().String("otp", "", "One-time code for accounts with two-factor auth")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")
	return cmd
}

// runLogin handles the login command execution
func runLogin(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	otp, _ := cmd.Flags().GetString("otp")

	client, creds, err := apiClient()
	if err != nil {
		return err
	}
	manager := sessionManager(client, creds)

	if err := manager.Login(username, password, otp); err != nil {
		return fmt.Errorf("login failed: %s", manager.LastError())
	}

	if err := saveCredentials(creds); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	user := manager.User()
	if jsonOutput {
		kv := map[string]any{
			"status": "success",
			"user":   user,
		}
		printJSON(kv)
	} else {
		okLabel.Println("✓ Login successful")
		if user != nil {
			fmt.Printf("Logged in as %s (%s)\n", user.Username, user.Role)
		}
	}

	return nil
}
