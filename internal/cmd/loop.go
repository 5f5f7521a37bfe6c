package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xdg/hookgate/internal/config"
	"github.com/xdg/hookgate/internal/loop"
)

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Manage the iteration loop for a session",
	Long: `Manage the iteration loop that keeps an agent session working on a
task. While a loop is active, every session stop is intercepted and the
task is re-injected until the agent emits the completion promise wrapped
in <promise></promise> tags, the iteration budget runs out, or the loop
is cancelled.`,
}

var loopStartCmd = &cobra.Command{
	Use:   "start [task...]",
	Short: "Arm the iteration loop with a task",
	Long: `Arm the iteration loop. The task text comes from the arguments, from
--task-file, or from stdin when neither is given. Starting is idempotent
while a loop is active: the running loop is kept and its iteration count
is preserved.`,
	Example: `  hookgate loop start "Fix every failing test, then run the full suite."
  hookgate loop start --task-file TASK.md --max-iterations 40
  echo "Migrate the schema" | hookgate loop start`,
	RunE: runLoopStart,
}

var loopCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the active loop",
	Long: `Cancel the active loop. The terminal record is kept for "loop status"
unless --purge is given, which removes the state file as well.`,
	Args: cobra.NoArgs,
	RunE: runLoopCancel,
}

var loopStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current loop state",
	Args:  cobra.NoArgs,
	RunE:  runLoopStatus,
}

func init() {
	loopCmd.PersistentFlags().String("session", "", "Host session identifier (default: the shared default slot)")

	loopCancelCmd.Flags().Bool("purge", false, "Remove the loop state file after cancelling")

	loopStartCmd.Flags().Int("max-iterations", 0, "Iteration budget (default: configured value)")
	loopStartCmd.Flags().String("completion-token", "", "Promise token that ends the loop (default: configured value)")
	loopStartCmd.Flags().String("task-file", "", "Read the task text from a file")

	viper.BindPFlag("loop.max-iterations", loopStartCmd.Flags().Lookup("max-iterations"))
	viper.BindPFlag("loop.completion-token", loopStartCmd.Flags().Lookup("completion-token"))
	viper.BindEnv("loop.max-iterations", "HOOKGATE_LOOP_MAX_ITERATIONS")
	viper.BindEnv("loop.completion-token", "HOOKGATE_LOOP_TOKEN")

	loopCmd.AddCommand(loopStartCmd)
	loopCmd.AddCommand(loopCancelCmd)
	loopCmd.AddCommand(loopStatusCmd)
	rootCmd.AddCommand(loopCmd)
}

func newLoopController() (*loop.Controller, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return loop.NewController(loop.NewStore(loop.DefaultDir()), cfg.Loop.MaxIdleTurns), nil
}

func runLoopStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	taskFile, _ := cmd.Flags().GetString("task-file")
	task, err := readTask(args, taskFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	maxIterations := viper.GetInt("loop.max-iterations")
	if maxIterations == 0 {
		maxIterations = cfg.Loop.DefaultMaxIterations
	}
	token := viper.GetString("loop.completion-token")
	if token == "" {
		token = cfg.Loop.DefaultToken
	}

	session, _ := cmd.Flags().GetString("session")
	ctrl := loop.NewController(loop.NewStore(loop.DefaultDir()), cfg.Loop.MaxIdleTurns)
	rec, err := ctrl.Setup(loop.SetupParams{
		Session:         session,
		Task:            task,
		MaxIterations:   maxIterations,
		CompletionToken: token,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loop armed: iteration %d/%d\n", rec.Iteration, rec.MaxIterations)
	fmt.Fprintf(out, "The loop ends when the agent replies with <promise>%s</promise>.\n", rec.CompletionToken)
	return nil
}

func runLoopCancel(cmd *cobra.Command, args []string) error {
	ctrl, err := newLoopController()
	if err != nil {
		return err
	}

	session, _ := cmd.Flags().GetString("session")
	rec, err := ctrl.Cancel(session)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case rec == nil:
		fmt.Fprintln(out, "No loop to cancel.")
	case rec.EndReason == loop.EndReasonCancelled:
		fmt.Fprintf(out, "Loop cancelled at iteration %d/%d.\n", rec.Iteration, rec.MaxIterations)
	default:
		fmt.Fprintf(out, "Loop already ended (%s).\n", rec.EndReason)
	}

	if purge, _ := cmd.Flags().GetBool("purge"); purge && rec != nil {
		if err := ctrl.Purge(session); err != nil {
			return err
		}
		fmt.Fprintln(out, "Loop state removed.")
	}
	return nil
}

func runLoopStatus(cmd *cobra.Command, args []string) error {
	ctrl, err := newLoopController()
	if err != nil {
		return err
	}

	session, _ := cmd.Flags().GetString("session")
	rec, err := ctrl.Status(session)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rec == nil {
		fmt.Fprintln(out, "No loop configured.")
		return nil
	}

	fmt.Fprintf(out, "Phase:      %s\n", rec.Phase())
	fmt.Fprintf(out, "Iteration:  %d/%d\n", rec.Iteration, rec.MaxIterations)
	fmt.Fprintf(out, "Promise:    <promise>%s</promise>\n", rec.CompletionToken)
	fmt.Fprintf(out, "Started:    %s\n", rec.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if rec.EndedAt != nil {
		fmt.Fprintf(out, "Ended:      %s (%s)\n", rec.EndedAt.Format("2006-01-02 15:04:05 MST"), rec.EndReason)
	}
	return nil
}

// readTask resolves the loop task from the argument list, a file, or
// stdin, in that order of preference.
func readTask(args []string, taskFile string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if taskFile != "" {
		data, err := os.ReadFile(taskFile)
		if err != nil {
			return "", fmt.Errorf("read task file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read task from stdin: %w", err)
	}
	task := strings.TrimSpace(string(data))
	if task == "" {
		return "", fmt.Errorf("no task given: pass it as arguments, --task-file, or stdin")
	}
	return task, nil
}
