package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/opsdeck/opsdeck/internal/common/httpclient"
)

var (
	// List command flags
	listOrdering string
	listPageSize int
	listFilters  []string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list RESOURCE_TYPE [flags]",
	Short: "List resources of a specific type",
	Long: `List resources of a specific type. Supported resource types include:
  - incidents
  - problems
  - changes
  - assets
  - config-items
  - articles
  - users

Examples:
  # List all incidents
  opsdeck list incidents

  # List open incidents, newest first
  opsdeck list incidents --filter status=open --ordering -created_at

  # List changes awaiting approval in JSON format
  opsdeck list changes --filter status=pending_approval -j`,
	Args: cobra.ExactArgs(1),
	RunE: listResources,
}

// listResources handles listing resources of a specific type
func listResources(cmd *cobra.Command, args []string) error {
	resourceType := args[0]

	collection, err := MapResourceTypeToURL(resourceType)
	if err != nil {
		return err
	}

	client, _, err := apiClient()
	if err != nil {
		return err
	}

	queryParams, err := buildListQuery()
	if err != nil {
		return err
	}

	response, err := client.ListResources(collection, queryParams)
	if err != nil {
		return err
	}

	result, err := httpclient.UnwrapList(response)
	if err != nil {
		return err
	}

	return printResourceList(resourceType, result)
}

// buildListQuery assembles query parameters from the list flags.
func buildListQuery() (map[string]string, error) {
	queryParams := make(map[string]string)
	if listOrdering != "" {
		queryParams["ordering"] = listOrdering
	}

	pageSize := listPageSize
	if pageSize == 0 {
		pageSize = GetConfig().DefaultPageSize
	}
	if pageSize > 0 {
		queryParams["page_size"] = strconv.Itoa(pageSize)
	}

	for _, filter := range listFilters {
		key, value, ok := strings.Cut(filter, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q. Expected key=value", filter)
		}
		queryParams[key] = value
	}
	return queryParams, nil
}

// printResourceList formats and prints a collection in either JSON or
// human-readable format.
func printResourceList(resourceType string, result httpclient.ListResult) error {
	if jsonOutput {
		items := make([]any, 0, len(result.Items))
		for _, raw := range result.Items {
			items = append(items, gjson.ParseBytes(raw).Value())
		}
		printJSON(map[string]any{
			"result": 1,
			"count":  result.Total,
			"value":  items,
		})
		return nil
	}

	if len(result.Items) == 0 {
		fmt.Printf("No %s found.\n", resourceType)
		return nil
	}

	for _, raw := range result.Items {
		fmt.Println(summarizeItem(raw))
	}
	if result.Total > len(result.Items) {
		fmt.Printf("(%d of %d)\n", len(result.Items), result.Total)
	}
	return nil
}

// summarizeItem builds a one-line summary of a list item. Ticketed
// resources lead with their ticket number, everything else with its id.
func summarizeItem(raw []byte) string {
	item := gjson.ParseBytes(raw)

	ref := item.Get("ticket_number").String()
	if ref == "" {
		ref = item.Get("id").String()
	}

	title := item.Get("title").String()
	if title == "" {
		title = item.Get("name").String()
	}
	if title == "" {
		title = item.Get("username").String()
	}

	line := fmt.Sprintf("- %s", ref)
	if title != "" {
		line += fmt.Sprintf("  %s", title)
	}
	if status := item.Get("status").String(); status != "" {
		line += fmt.Sprintf("  [%s]", status)
	}
	return line
}

// init initializes the list command with its flags and adds it to the root command
func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listOrdering, "ordering", "o", "", "Sort order, e.g. -created_at")
	listCmd.Flags().IntVar(&listPageSize, "page-size", 0, "Number of items per page")
	listCmd.Flags().StringArrayVar(&listFilters, "filter", nil, "Filter in key=value form (repeatable)")
}
