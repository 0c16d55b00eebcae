package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var ignoreErrors bool

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create -f FILENAME [flags]",
	Short: "Create resources from a file",
	Long: `Create resources from a YAML file. The resource type is determined by
the 'kind' field in each document. Supported kinds:
  - Incident
  - Problem
  - Change
  - Asset
  - ConfigItem
  - Article

Example file:
  kind: Incident
  spec:
    title: Printer on fire
    description: Smoke coming from the office printer
    priority: high

Examples:
  # Create a ticket
  opsdeck create -f incident.yaml

  # Create several resources, continuing past failures
  opsdeck create -f resources.yaml --ignore-errors`,
	RunE: createResources,
}

// createResources loads the manifests and creates each one in file order
func createResources(cmd *cobra.Command, args []string) error {
	filename, err := cmd.Flags().GetString("filename")
	if err != nil {
		return err
	}
	if filename == "" {
		return fmt.Errorf("filename is required")
	}

	manifests, err := LoadManifests(filename)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		return fmt.Errorf("no resources found in %s", filename)
	}

	client, _, err := apiClient()
	if err != nil {
		return err
	}

	var statusValues []map[string]any
	defer func() {
		if len(statusValues) > 0 {
			printCreateStatus(statusValues)
		}
	}()

	for _, manifest := range manifests {
		collection, err := MapKindToURL(manifest.Kind)
		if err != nil {
			return err
		}

		body, location, err := client.CreateResource(collection, manifest.JSON)
		if err != nil {
			statusValues = append(statusValues, map[string]any{
				"kind":    manifest.Kind,
				"name":    manifest.name(),
				"created": false,
				"error":   err.Error(),
			})
			if !ignoreErrors {
				return ErrAlreadyHandled
			}
			continue
		}

		status := map[string]any{
			"kind":     manifest.Kind,
			"name":     manifest.name(),
			"created":  true,
			"location": location,
		}
		if ticket := gjson.GetBytes(body, "ticket_number").String(); ticket != "" {
			status["ticket_number"] = ticket
		}
		statusValues = append(statusValues, status)
	}
	return nil
}

// printCreateStatus reports the per-manifest outcome
func printCreateStatus(statusValues []map[string]any) {
	if jsonOutput {
		printJSON(statusValues)
		return
	}
	for _, status := range statusValues {
		created, _ := status["created"].(bool)
		if created {
			okLabel.Fprintf(os.Stdout, "[OK] ")
			if ticket, ok := status["ticket_number"].(string); ok {
				fmt.Fprintf(os.Stdout, "Created %s: %s\n", ticket, status["name"])
			} else {
				fmt.Fprintf(os.Stdout, "Created: %s\n", status["location"])
			}
		} else {
			errorLabel.Fprintf(os.Stderr, "[ERROR] ")
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", status["kind"], status["name"], status["error"])
		}
	}
}

// init initializes the create command with its flags and adds it to the root command
func init() {
	createCmd.Flags().StringP("filename", "f", "", "Filename to use to create the resources")
	createCmd.MarkFlagRequired("filename")
	createCmd.Flags().BoolVarP(&ignoreErrors, "ignore-errors", "i", false, "Ignore errors and continue with the next resource")

	rootCmd.AddCommand(createCmd)
}
