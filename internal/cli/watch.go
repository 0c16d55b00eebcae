package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/opsdeck/opsdeck/internal/common/resource"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch RESOURCE_TYPE [flags]",
	Short: "Watch a collection for new items",
	Long: `Watch a collection, polling the server and printing items as they
appear. Stop with Ctrl-C.

Examples:
  # Watch for new incidents
  opsdeck watch incidents

  # Poll faster
  opsdeck watch changes --interval 5s`,
	Args: cobra.ExactArgs(1),
	RunE: watchResources,
}

func watchResources(cmd *cobra.Command, args []string) error {
	resourceType := args[0]

	collection, err := MapResourceTypeToURL(resourceType)
	if err != nil {
		return err
	}

	client, _, err := apiClient()
	if err != nil {
		return err
	}

	sub := resource.New(client, collection+"/", resource.Options{})
	if err := sub.Load(); err != nil {
		return err
	}

	seen := make(map[string]bool)
	printNewItems(sub, seen, false)
	fmt.Printf("Watching %s (every %s). Press Ctrl-C to stop.\n", resourceType, watchInterval)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sub.Reload(); err != nil {
				errorLabel.Fprintf(os.Stderr, "poll failed: %v\n", err)
				continue
			}
			printNewItems(sub, seen, true)
		}
	}
}

// printNewItems prints items not seen before. The initial pass only
// records what already exists.
func printNewItems(sub *resource.Subscription, seen map[string]bool, print bool) {
	result, err := sub.Items()
	if err != nil {
		return
	}
	for _, raw := range result.Items {
		item := gjson.ParseBytes(raw)
		ref := item.Get("ticket_number").String()
		if ref == "" {
			ref = item.Get("id").String()
		}
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		if print {
			fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), summarizeItem(raw))
		}
	}
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 10*time.Second, "Poll interval")
	rootCmd.AddCommand(watchCmd)
}
