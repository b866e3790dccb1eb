package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakerid/pkg/cli"
	"github.com/haivivi/speakerid/pkg/speakerapi"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List enrolled users",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getContext()
		if err != nil {
			return err
		}
		users, err := newClient(c).ListEnrolledUsers(cmd.Context())
		if err != nil {
			return err
		}
		if structured() {
			return outputResult(map[string]any{"users": users})
		}
		if len(users) == 0 {
			fmt.Println("No users enrolled")
			return nil
		}
		for _, u := range users {
			fmt.Println(u.Username)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getContext()
		if err != nil {
			return err
		}
		client := newClient(c)
		h, err := client.Health(cmd.Context())
		if err != nil {
			if apiErr, ok := speakerapi.AsError(err); ok && apiErr.IsNotFound() {
				return fmt.Errorf("%s does not expose /health", client.BaseURL())
			}
			return err
		}
		if structured() {
			return outputResult(h)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Backend:\t%s\n", client.BaseURL())
		fmt.Fprintf(w, "Status:\t%s\n", h.Status)
		if h.APIVersion != "" {
			fmt.Fprintf(w, "API version:\t%s\n", h.APIVersion)
		}
		if h.Message != "" {
			fmt.Fprintf(w, "Message:\t%s\n", h.Message)
		}
		w.Flush()
		if h.Status != "ok" && h.Status != "healthy" {
			cli.PrintWarning("backend reports status %q", h.Status)
		}
		return nil
	},
}
