package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/internal/common/httpclient"
	"github.com/opsdeck/opsdeck/internal/common/session"
)

var impersonateStop bool

// stashedIdentity is the on-disk copy of the session that was active
// before impersonation started.
type stashedIdentity struct {
	User    *session.UserProfile `json:"user"`
	Cookies json.RawMessage      `json:"cookies"`
}

var impersonateCmd = &cobra.Command{
	Use:   "impersonate USER_ID [flags]",
	Short: "Act as another user",
	Long: `Act as another user. Requires a superuser session. The original
session is stashed locally and restored with --stop, so impersonation does
not require logging in again.

Examples:
  # Start acting as user 7
  opsdeck impersonate 7

  # Return to the original session
  opsdeck impersonate --stop`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImpersonate,
}

func runImpersonate(cmd *cobra.Command, args []string) error {
	client, creds, err := apiClient()
	if err != nil {
		return err
	}
	manager := sessionManager(client, creds)

	if impersonateStop {
		if len(args) > 0 {
			return fmt.Errorf("--stop takes no arguments")
		}
		return stopImpersonation(creds)
	}

	if len(args) != 1 {
		return fmt.Errorf("USER_ID is required (or use --stop)")
	}
	return startImpersonation(manager, creds, args[0])
}

func startImpersonation(manager *session.Manager, creds *httpclient.CookieCredentials, userID string) error {
	if _, err := os.Stat(stashFile()); err == nil {
		return fmt.Errorf("already impersonating; run \"opsdeck impersonate --stop\" first")
	}

	// Capture the current identity before it is replaced.
	snapshot, err := creds.SnapshotFor(GetConfig().GetServerURL())
	if err != nil {
		return err
	}
	manager.Bootstrap()
	original := manager.User()

	if err := manager.Impersonate(userID); err != nil {
		return err
	}

	if err := writeStash(stashedIdentity{User: original, Cookies: snapshot}); err != nil {
		return err
	}
	if err := saveCredentials(creds); err != nil {
		return err
	}

	user := manager.User()
	if jsonOutput {
		printJSON(map[string]any{"result": 1, "user": user})
	} else if user != nil {
		okLabel.Printf("✓ Now acting as %s\n", user.Username)
	}
	return nil
}

func stopImpersonation(creds *httpclient.CookieCredentials) error {
	stash, err := readStash()
	if err != nil {
		return err
	}
	if stash == nil {
		return fmt.Errorf("not impersonating")
	}

	cfg := GetConfig()
	if err := creds.RestoreFor(cfg.GetServerURL(), stash.Cookies); err != nil {
		return err
	}
	if err := saveCredentials(creds); err != nil {
		return err
	}

	store := session.NewFileProfileStore(cfg.ProfileCacheFile())
	if stash.User != nil {
		if err := store.Save(stash.User); err != nil {
			return err
		}
	} else if err := store.Clear(); err != nil {
		return err
	}
	if err := os.Remove(stashFile()); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]any{"result": 1, "user": stash.User})
	} else if stash.User != nil {
		okLabel.Printf("✓ Back to %s\n", stash.User.Username)
	} else {
		okLabel.Println("✓ Impersonation ended")
	}
	return nil
}

func stashFile() string {
	return filepath.Join(filepath.Dir(GetConfig().ProfileCacheFile()), "impersonation.json")
}

func writeStash(stash stashedIdentity) error {
	data, err := json.Marshal(stash)
	if err != nil {
		return err
	}
	return os.WriteFile(stashFile(), data, 0600)
}

func readStash() (*stashedIdentity, error) {
	data, err := os.ReadFile(stashFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var stash stashedIdentity
	if err := json.Unmarshal(data, &stash); err != nil {
		return nil, fmt.Errorf("corrupt impersonation stash: %w", err)
	}
	return &stash, nil
}

func init() {
	impersonateCmd.Flags().BoolVar(&impersonateStop, "stop", false, "Stop impersonating and restore the original session")
	rootCmd.AddCommand(impersonateCmd)
}
