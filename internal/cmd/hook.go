package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xdg/hookgate/internal/audit"
	"github.com/xdg/hookgate/internal/config"
	"github.com/xdg/hookgate/internal/dispatch"
	"github.com/xdg/hookgate/internal/guard"
	"github.com/xdg/hookgate/internal/hlog"
	"github.com/xdg/hookgate/internal/loop"
)

// envelopeLimit caps how much of stdin is read as the hook envelope.
// MultiEdit payloads carrying whole files can be large; 16 MiB is far
// beyond anything a well-behaved host sends.
const envelopeLimit = 16 * 1024 * 1024

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Evaluate one hook event from stdin",
	Long: `Read one JSON hook envelope from stdin, evaluate it, and signal the
verdict through the exit code:

  0  operation allowed
  2  operation blocked; the reason is on stderr
  3  loop state could not be persisted

For a blocked session stop, a continuation response is written to stdout
so the host re-injects the loop task.

This command is meant to be registered as the host runtime's handler for
tool-use, prompt, and stop events; it is rarely run by hand.`,
	Args: cobra.NoArgs,
	RunE: runHook,
}

func init() {
	hookCmd.Flags().String("config", "", "Config file path (default: user config dir)")
	hookCmd.Flags().String("project-dir", "", "Project root for path matching (default: event cwd)")
	hookCmd.Flags().Bool("allow-protected", false, "Bypass sentinel zone protection for this invocation")
	hookCmd.Flags().Bool("debug", false, "Enable debug logging")

	viper.BindPFlag("hook.config", hookCmd.Flags().Lookup("config"))
	viper.BindPFlag("hook.allow-protected", hookCmd.Flags().Lookup("allow-protected"))
	viper.BindPFlag("hook.debug", hookCmd.Flags().Lookup("debug"))
	viper.BindEnv("hook.config", "HOOKGATE_CONFIG")
	viper.BindEnv("hook.allow-protected", "HOOKGATE_ALLOW_PROTECTED")
	viper.BindEnv("hook.debug", "HOOKGATE_DEBUG")

	rootCmd.AddCommand(hookCmd)
}

// hookOptions carry everything runHook resolves from flags and env, so the
// evaluation path itself is testable without a cobra command.
type hookOptions struct {
	configPath string
	projectDir string
	bypass     bool
	debug      bool
	auditDir   string
	loopDir    string
}

func runHook(cmd *cobra.Command, args []string) error {
	debug := viper.GetBool("hook.debug")
	if err := hlog.ConfigureWithDefaults(debug, true); err != nil {
		// A broken diagnostic log must not take the hook down with it.
		hlog.Discard()
	}
	defer hlog.Close()

	projectDir, _ := cmd.Flags().GetString("project-dir")
	opts := hookOptions{
		configPath: viper.GetString("hook.config"),
		projectDir: projectDir,
		bypass:     viper.GetBool("hook.allow-protected"),
		debug:      debug,
		auditDir:   audit.DefaultDir(),
		loopDir:    loop.DefaultDir(),
	}

	return executeHook(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
}

// executeHook reads one envelope, dispatches it, and translates the
// outcome into streams and an exit code. Stderr carries only the verdict
// reason; diagnostics go to the hlog file.
func executeHook(in io.Reader, stdout, stderr io.Writer, opts hookOptions) error {
	cfg, err := loadHookConfig(opts.configPath)
	if err != nil {
		return err
	}
	applyLogConfig(&cfg.Log, opts.debug)

	commands, err := guard.NewCommandGuard(&cfg.Commands)
	if err != nil {
		return fmt.Errorf("compile command rules: %w", err)
	}
	paths := guard.NewPathGuard(&cfg.Paths, opts.bypass)
	loops := loop.NewController(loop.NewStore(opts.loopDir), cfg.Loop.MaxIdleTurns)

	rec := audit.NewRecorder(opts.auditDir)
	defer rec.Close()

	data, err := io.ReadAll(io.LimitReader(in, envelopeLimit))
	if err != nil {
		return fmt.Errorf("read hook envelope: %w", err)
	}

	out := dispatch.New(commands, paths, loops, rec, opts.projectDir).Dispatch(data)

	switch {
	case out.PersistenceFailure:
		fmt.Fprintln(stderr, out.Reason)
		return NewExitCodeError(ExitPersist)

	case out.Loop != nil && out.Loop.Continue:
		if err := writeContinuation(stdout, out.Loop); err != nil {
			return fmt.Errorf("write continuation response: %w", err)
		}
		return NewExitCodeError(ExitBlock)

	case out.Block:
		fmt.Fprintln(stderr, out.Reason)
		return NewExitCodeError(ExitBlock)

	default:
		return nil
	}
}

// applyLogConfig layers the config file's log settings over the defaults
// runHook already configured. The --debug flag is not overridden: an
// operator asking for debug on the command line gets it.
func applyLogConfig(cfg *config.LogConfig, debug bool) {
	if cfg.Level != "" && !debug {
		hlog.SetLevel(hlog.ParseLevel(cfg.Level))
	}
	if cfg.File != "" {
		if f, err := hlog.OpenLogFile(cfg.File); err == nil {
			hlog.SetFileOutput(f)
		} else {
			hlog.Warn("log: cannot open configured file: %v", err)
		}
	}
}

// loadHookConfig loads from an explicit path when given, the default
// location otherwise.
func loadHookConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// continuationResponse is the structured stop-hook response the host
// parses from stdout when a stop is blocked.
type continuationResponse struct {
	Decision     string `json:"decision"`
	Reason       string `json:"reason"`
	OutputToUser string `json:"outputToUser,omitempty"`
	Prompt       string `json:"prompt"`
}

func writeContinuation(w io.Writer, out *loop.StopOutcome) error {
	resp := continuationResponse{
		Decision:     "block",
		Reason:       out.Reason,
		OutputToUser: fmt.Sprintf("Loop iteration %d/%d", out.Iteration, out.MaxIterations),
		Prompt:       out.Task,
	}
	return json.NewEncoder(w).Encode(resp)
}
