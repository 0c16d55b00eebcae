package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var getCmd = &cobra.Command{
	Use:   "get RESOURCE_TYPE/ID [flags]",
	Short: "Get a resource by type and id",
	Long: `Get a single resource by type and id. The format is RESOURCE_TYPE/ID.

Examples:
  # Get an incident
  opsdeck get incidents/42

  # Get a knowledge article in JSON format
  opsdeck get articles/7 -j`,
	Args: cobra.ExactArgs(1),
	RunE: getResource,
}

func getResource(cmd *cobra.Command, args []string) error {
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

	response, err := client.GetResource(collection, id, nil)
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

	item := gjson.ParseBytes(response)
	if !item.IsObject() {
		fmt.Println(string(response))
		return nil
	}
	item.ForEach(func(key, value gjson.Result) bool {
		fmt.Printf("%s: %s\n", key.String(), value.String())
		return true
	})
	return nil
}

func init() {
	rootCmd.AddCommand(getCmd)
}
