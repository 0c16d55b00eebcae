package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection and session status",
	Long: `Show connection and session status. This command reports the
configured server, whether a session is stored, and whether the server
still accepts it.

Examples:
  # Show status
  opsdeck status

  # Show status in JSON format
  opsdeck status -j`,
	RunE: getStatus,
}

// getStatus reports configuration and session state
func getStatus(cmd *cobra.Command, args []string) error {
	// Config load is skipped by the persistent pre-run for status, so a
	// broken config is reported instead of aborting.
	if err := LoadConfig(configFile); err != nil {
		if jsonOutput {
			printJSON(map[string]string{
				"version_cli": getCLIVersion(),
				"error":       err.Error(),
			})
		} else {
			fmt.Printf("opsdeck CLI %s\n", getCLIVersion())
			if os.IsNotExist(err) {
				fmt.Println("Not configured. Run \"opsdeck config --server <url>\" first.")
			} else {
				fmt.Printf("Error: %v\n", err)
			}
		}
		return ErrAlreadyHandled
	}

	client, creds, err := apiClient()
	if err != nil {
		return err
	}
	manager := sessionManager(client, creds)

	bootStatus := manager.Bootstrap()
	user := manager.User()

	if jsonOutput {
		printJSON(map[string]any{
			"version_cli": getCLIVersion(),
			"server":      GetConfig().GetServerURL(),
			"session":     string(bootStatus),
			"user":        user,
		})
		return nil
	}

	fmt.Printf("opsdeck CLI %s\n", getCLIVersion())
	fmt.Printf("Server: %s\n", GetConfig().GetServerURL())
	switch {
	case user != nil:
		okLabel.Printf("Session: %s\n", bootStatus)
		fmt.Printf("User: %s\n", user.Username)
	default:
		fmt.Printf("Session: %s\n", bootStatus)
		fmt.Println("Log in with \"opsdeck login\".")
	}
	return nil
}

// init initializes the status command and adds it to the root command
func init() {
	rootCmd.AddCommand(statusCmd)
}
