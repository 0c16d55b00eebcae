package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var updateSets []string

var updateCmd = &cobra.Command{
	Use:   "update RESOURCE_TYPE/ID --set key=value [flags]",
	Short: "Update fields of a resource",
	Long: `Update fields of a resource with a partial update. Only the fields
named with --set change; everything else is left as is. Nested fields use
dot notation.

Examples:
  # Assign an incident
  opsdeck update incidents/42 --set assignee=7

  # Change status and priority together
  opsdeck update incidents/42 --set status=in_progress --set priority=high`,
	Args: cobra.ExactArgs(1),
	RunE: updateResource,
}

func updateResource(cmd *cobra.Command, args []string) error {
	resourceType, id, err := splitResourceRef(args[0])
	if err != nil {
		return err
	}

	collection, err := MapResourceTypeToURL(resourceType)
	if err != nil {
		return err
	}

	if len(updateSets) == 0 {
		return fmt.Errorf("at least one --set key=value is required")
	}

	patch, err := buildPatch(updateSets)
	if err != nil {
		return err
	}

	client, _, err := apiClient()
	if err != nil {
		return err
	}

	response, err := client.PatchResource(collection, id, patch)
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
	okLabel.Printf("✓ Updated %s/%s\n", resourceType, id)
	return nil
}

// buildPatch assembles the partial update document from key=value pairs.
// Values that parse as JSON scalars keep their type; everything else is a
// string.
func buildPatch(sets []string) (map[string]any, error) {
	doc := "{}"
	for _, set := range sets {
		key, value, ok := strings.Cut(set, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q. Expected key=value", set)
		}

		var err error
		parsed := gjson.Parse(value)
		switch {
		case parsed.Type == gjson.Number || parsed.Type == gjson.True ||
			parsed.Type == gjson.False || parsed.Type == gjson.Null:
			doc, err = sjson.SetRaw(doc, key, value)
		default:
			doc, err = sjson.Set(doc, key, value)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", set, err)
		}
	}

	patch, ok := gjson.Parse(doc).Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid patch document")
	}
	return patch, nil
}

func init() {
	updateCmd.Flags().StringArrayVar(&updateSets, "set", nil, "Field to set in key=value form (repeatable)")
	rootCmd.AddCommand(updateCmd)
}
