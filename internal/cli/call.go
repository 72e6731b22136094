package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacquerai/engine/internal/client"
	"github.com/lacquerai/engine/internal/execcontext"
	"github.com/lacquerai/engine/internal/protocol"
	"github.com/lacquerai/engine/internal/style"
)

var (
	// Call command flags
	callExec    string
	callRaw     bool
	callTimeout time.Duration
)

// callCmd represents the call command
var callCmd = &cobra.Command{
	Use:   "call [commands...]",
	Short: "Start an engine process and send it commands",
	Long: `Start an engine as a child process, send each argument as a request and
print each response line to standard output.

Without arguments a single request with no command is sent. With --raw each
argument is written to the engine verbatim instead of as {"command": ...}.`,
	Example: `  engine call ping
  engine call --raw '{"command": "x", "extra": 1}' 'not json'
  engine call --exec ./bin/engine ping`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runCtx := execcontext.RunContext{
			Context: cmd.Context(),
			StdIn:   cmd.InOrStdin(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.ErrOrStderr(),
		}
		return runCall(runCtx, args)
	},
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVar(&callExec, "exec", "", "engine binary to start (default is this binary)")
	callCmd.Flags().BoolVar(&callRaw, "raw", false, "send arguments as raw request lines")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "time allowed for the whole exchange")
}

func runCall(runCtx execcontext.RunContext, args []string) error {
	path := callExec
	if path == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate engine binary: %w", err)
		}
		path = self
	}

	ctx, cancel := context.WithTimeout(runCtx.Context, callTimeout)
	defer cancel()

	spin := style.NewSpinner(runCtx.StdErr)
	spin.SetSuffix(" starting engine")
	if !viper.GetBool("quiet") {
		spin.Start()
	}

	c, err := client.Spawn(ctx, path, "--ready", "--quiet", "--log-level", viper.GetString("log-level"))
	if err != nil {
		spin.Stop()
		return err
	}

	err = c.WaitReady(ctx)
	spin.Stop()
	if err != nil {
		_ = c.Close()
		style.Error(runCtx.StdErr, fmt.Sprintf("Engine %s did not report ready", path))
		return fmt.Errorf("engine %s did not start: %w", path, err)
	}
	if !viper.GetBool("quiet") {
		style.Success(runCtx.StdErr, "Engine ready")
	}

	if len(args) == 0 {
		args = []string{""}
		if callRaw {
			args = []string{"{}"}
		}
	}

	for _, arg := range args {
		resp, err := send(ctx, c, arg)
		if err != nil {
			_ = c.Close()
			return err
		}
		if err := protocol.Encode(runCtx, resp); err != nil {
			_ = c.Close()
			return fmt.Errorf("failed to print response: %w", err)
		}
	}

	if err := c.Close(); err != nil {
		style.Error(runCtx.StdErr, err.Error())
		return err
	}
	return nil
}

func send(ctx context.Context, c *client.Client, arg string) (protocol.Response, error) {
	if callRaw {
		return c.SendRaw(ctx, []byte(arg))
	}
	if arg == "" {
		return c.Send(ctx, nil)
	}
	return c.Send(ctx, arg)
}
