package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bulwark-dev/bulwark/pkg/profile"
)

func newProfilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect and validate resilience profiles",
	}

	cmd.AddCommand(newProfilesListCommand())
	cmd.AddCommand(newProfilesValidateCommand())

	return cmd
}

func newProfilesListCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles from the configured paths",
		Example: `  # List profiles from a directory
  bulwark profiles list --profiles ./profiles

  # Re-list on every file change
  bulwark profiles list --profiles ./profiles --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(profilePaths) == 0 {
				return fmt.Errorf("no profile paths given, use --profiles")
			}

			loader := profile.NewLoader(log.Logger)
			profiles, err := loader.LoadFromPaths(ctx, profilePaths)
			if err != nil {
				return err
			}

			if err := printProfiles(profiles); err != nil {
				return err
			}

			if !watch {
				return nil
			}

			err = loader.Watch(ctx, profilePaths, func(reloaded []profile.Profile) error {
				return printProfiles(reloaded)
			})
			if err != nil {
				return err
			}
			defer func() { _ = loader.StopWatching() }()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "watch paths and re-list on change")

	return cmd
}

func newProfilesValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate profile definition files",
		Example: `  # Validate all profiles under a directory
  bulwark profiles validate --profiles ./profiles`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(profilePaths) == 0 {
				return fmt.Errorf("no profile paths given, use --profiles")
			}

			loader := profile.NewLoader(log.Logger)
			profiles, err := loader.LoadFromPaths(cmd.Context(), profilePaths)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			fmt.Printf("OK: %d profiles valid\n", len(profiles))
			return nil
		},
	}
}

// printProfiles renders profiles as a table, or as JSON with --json.
func printProfiles(profiles []profile.Profile) error {
	if jsonOutput {
		data, err := json.MarshalIndent(profiles, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tATTEMPTS\tDELAY\tBACKOFF\tTIMEOUT\tKINDS")
	for _, p := range profiles {
		kinds := "*"
		if len(p.MatchedKinds) > 0 {
			kinds = fmt.Sprintf("%v", p.MatchedKinds)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%g\t%s\t%s\n",
			p.Name, p.Attempts, p.Delay, p.Backoff, p.Timeout, kinds)
	}
	return w.Flush()
}
