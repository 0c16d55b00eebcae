package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete RESOURCE_TYPE/ID [flags]",
	Short: "Delete a resource by type and id",
	Long: `Delete a resource by type and id. The format is RESOURCE_TYPE/ID.

Examples:
  # Delete an asset
  opsdeck delete assets/13

  # Delete a knowledge article
  opsdeck delete articles/7`,
	Args: cobra.ExactArgs(1),
	RunE: deleteResource,
}

// deleteResource handles the deletion of a resource by type and id
func deleteResource(cmd *cobra.Command, args []string) error {
	resourceType, id, err := splitResourceRef(args[0])
	if err != nil {
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

	if err := client.DeleteResource(collection, id); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]int{"result": 1})
	} else {
		fmt.Printf("Successfully deleted %s/%s\n", resourceType, id)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
