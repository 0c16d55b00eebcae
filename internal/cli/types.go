package cli

import (
	"fmt"
	"sort"
	"strings"
)

// Resource kinds accepted in YAML manifests.
const (
	KindIncident   = "Incident"
	KindProblem    = "Problem"
	KindChange     = "Change"
	KindAsset      = "Asset"
	KindConfigItem = "ConfigItem"
	KindArticle    = "Article"
)

// collections maps the CLI resource type to its API collection path.
var collections = map[string]string{
	"incidents":    "/incidents/incidents",
	"problems":     "/problems/problems",
	"changes":      "/changes/changes",
	"assets":       "/assets/assets",
	"config-items": "/cmdb/config-items",
	"articles":     "/knowledge/articles",
	"users":        "/users",
}

// kindToType maps a manifest kind to its CLI resource type.
var kindToType = map[string]string{
	KindIncident:   "incidents",
	KindProblem:    "problems",
	KindChange:     "changes",
	KindAsset:      "assets",
	KindConfigItem: "config-items",
	KindArticle:    "articles",
}

// actions allowed by the action command, per resource type.
var actions = map[string][]string{
	"changes":  {"approve", "reject", "submit", "implement", "complete"},
	"articles": {"publish", "archive"},
	"problems": {"complete"},
}

// MapResourceTypeToURL returns the collection path for a CLI resource type.
func MapResourceTypeToURL(resourceType string) (string, error) {
	path, ok := collections[resourceType]
	if !ok {
		return "", fmt.Errorf("unknown resource type %q (expected one of: %s)", resourceType, knownResourceTypes())
	}
	return path, nil
}

// MapKindToURL returns the collection path for a manifest kind.
func MapKindToURL(kind string) (string, error) {
	resourceType, ok := kindToType[kind]
	if !ok {
		return "", fmt.Errorf("unknown kind %q", kind)
	}
	return collections[resourceType], nil
}

// ValidateAction checks that an action is allowed for a resource type.
func ValidateAction(resourceType, action string) error {
	allowed, ok := actions[resourceType]
	if !ok {
		return fmt.Errorf("resource type %q has no actions", resourceType)
	}
	for _, a := range allowed {
		if a == action {
			return nil
		}
	}
	return fmt.Errorf("unknown action %q for %s (expected one of: %s)",
		action, resourceType, strings.Join(allowed, ", "))
}

// entityTypeFor returns the broadcast entity type for a CLI resource type,
// e.g. "incidents" becomes "incident".
func entityTypeFor(resourceType string) string {
	return strings.TrimSuffix(resourceType, "s")
}

func knownResourceTypes() string {
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// splitResourceRef parses a RESOURCE_TYPE/ID argument.
func splitResourceRef(arg string) (resourceType, id string, err error) {
	parts := strings.SplitN(arg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid resource format. Expected <resourceType>/<id>")
	}
	return parts[0], parts[1], nil
}
