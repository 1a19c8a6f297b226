package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bulwark-dev/bulwark/pkg/capability"
	"github.com/bulwark-dev/bulwark/pkg/fault"
	"github.com/bulwark-dev/bulwark/pkg/outcome"
	"github.com/bulwark-dev/bulwark/pkg/profile"
	"github.com/bulwark-dev/bulwark/pkg/telemetry"
	"github.com/bulwark-dev/bulwark/pkg/wrap"
)

// commandTarget exposes one external command as a capability set, so the
// decoration engine can wrap it like any other target.
type commandTarget struct {
	set *capability.Set
}

func (t *commandTarget) Capabilities() *capability.Set { return t.set }

func newCommandTarget(ctx context.Context, name string, argv []string) (*commandTarget, error) {
	set := capability.NewSet()
	err := set.Register("Run", func(args ...interface{}) (interface{}, error) {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return nil, fault.New("CommandFailed", "%s exited with code %d", name, exitErr.ExitCode())
			}
			return nil, fault.Wrap(err, "CommandError")
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return &commandTarget{set: set}, nil
}

func newRunCommand() *cobra.Command {
	var profileName string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command under a resilience profile",
		Long: `Run an external command under a named resilience profile.

The profile controls retry attempts, delay and backoff between attempts,
matched fault kinds, an optional fallback exit value, and a wall-clock
timeout after which the command is abandoned.`,
		Example: `  # Retry a flaky fetch up to five times
  bulwark run --profiles ./profiles --profile flaky-fetch -- curl -fsS https://example.com

  # Single attempt with the built-in default profile
  bulwark run -- ./healthcheck.sh`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			prof, err := resolveProfile(ctx, profileName)
			if err != nil {
				return err
			}

			target, err := newCommandTarget(ctx, args[0], args)
			if err != nil {
				return err
			}

			metrics, err := newRunMetrics(metricsAddr)
			if err != nil {
				return err
			}

			engine := wrap.New(log.Logger,
				wrap.WithObserver(metrics),
				wrap.WithFailureRecorder(metrics),
			)
			if err := engine.Wrap(target, prof); err != nil {
				return err
			}

			log.Info().
				Str("command", strings.Join(args, " ")).
				Str("profile", prof.Name).
				Msg("Running command")

			result := outcome.Execute(log.Logger, func(callArgs ...interface{}) (interface{}, error) {
				return target.Capabilities().Invoke("Run")
			})

			if jsonOutput {
				text, err := result.JSONString()
				if err != nil {
					return err
				}
				fmt.Println(text)
			}

			if result.HasFault() {
				return fmt.Errorf("command failed: %s", result.FaultMessage())
			}

			log.Info().
				Dur("elapsed", result.Elapsed()).
				Msg("Command completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&profileName, "profile", "", "profile name to apply (default: built-in single attempt)")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address for the lifetime of the run")

	return cmd
}

// newRunMetrics builds the collector decorated operations report into.
// With no address the collector is a no-op; with one, the metrics
// endpoint is served until the process exits.
func newRunMetrics(addr string) (*telemetry.Metrics, error) {
	cfg := telemetry.DefaultConfig().Metrics
	cfg.Enabled = addr != ""
	cfg.ListenAddress = addr

	metrics, err := telemetry.NewMetrics(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Enabled {
		if err := metrics.StartMetricsServer(); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

// resolveProfile loads the named profile from the configured paths, or
// returns the built-in default when no name is given.
func resolveProfile(ctx context.Context, name string) (profile.Profile, error) {
	if name == "" {
		return profile.Default("default"), nil
	}

	if len(profilePaths) == 0 {
		return profile.Profile{}, fmt.Errorf("--profile requires --profiles to locate profile definitions")
	}

	loader := profile.NewLoader(log.Logger)
	profiles, err := loader.LoadFromPaths(ctx, profilePaths)
	if err != nil {
		return profile.Profile{}, err
	}

	prof, ok := profile.ByName(profiles)[name]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile %q not found in %s", name, strings.Join(profilePaths, ", "))
	}
	return prof, nil
}
