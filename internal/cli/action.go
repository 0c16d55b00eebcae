package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var actionComment string

var actionCmd = &cobra.Command{
	Use:   "action RESOURCE_TYPE/ID ACTION [flags]",
	Short: "Run a workflow action on a resource",
	Long: `Run a workflow action on a resource. Available actions depend on the
resource type:
  - changes: approve, reject, submit, implement, complete
  - problems: complete
  - articles: publish, archive

Examples:
  # Approve a change
  opsdeck action changes/42 approve

  # Reject a change with a comment
  opsdeck action changes/42 reject --comment "Rollback plan missing"

  # Publish an article
  opsdeck action articles/7 publish`,
	Args: cobra.ExactArgs(2),
	RunE: runAction,
}

func runAction(cmd *cobra.Command, args []string) error {
	resourceType, id, err := splitResourceRef(args[0])
	if err != nil {
		return err
	}
	action := args[1]

	if err := ValidateAction(resourceType, action); err != nil {
		return err
	}
	collection, err := MapResourceTypeToURL(resourceType)
	if err != nil {
		return err
	}

	client, _, err := apiClient()
	if err != nil {
		return err
	}

	var payload map[string]any
	if actionComment != "" {
		payload = map[string]any{"comment": actionComment}
	}

	response, err := client.ResourceAction(collection, id, action, payload)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]any{
			"result": 1,
			"value":  gjson.ParseBytes(response).Value(),
		})
		return nil
	}

	okLabel.Printf("✓ %s %s/%s\n", action, resourceType, id)
	if status := gjson.GetBytes(response, "status").String(); status != "" {
		fmt.Printf("Status: %s\n", status)
	}
	return nil
}

func init() {
	actionCmd.Flags().StringVar(&actionComment, "comment", "", "Comment to attach to the action")
	rootCmd.AddCommand(actionCmd)
}
