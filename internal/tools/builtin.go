package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// RegisterBuiltins adds the built-in tools to the registry. Filesystem
// tools require human approval; read-nothing tools are auto-approved.
func RegisterBuiltins(r *Registry) {
	r.MustRegister("list_files", "List the entries of a directory", true,
		func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			if path == "" {
				return "", fmt.Errorf("path argument is required")
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return "", err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			return strings.Join(names, "\n"), nil
		})

	r.MustRegister("read_file", "Read the contents of a file", true,
		func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			if path == "" {
				return "", fmt.Errorf("path argument is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			return string(data), nil
		})

	r.MustRegister("current_time", "Report the current time in UTC", false,
		func(ctx context.Context, args map[string]any) (string, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		})
}
