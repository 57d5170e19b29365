package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-viper/mapstructure/v2"
	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdcore "github.com/projecteru2/vmsentinel/cmd/core"
	cmdguard "github.com/projecteru2/vmsentinel/cmd/guard"
	cmdothers "github.com/projecteru2/vmsentinel/cmd/others"
	cmdwatcher "github.com/projecteru2/vmsentinel/cmd/watcher"
	"github.com/projecteru2/vmsentinel/config"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vmsentinel",
		Short: "vmsentinel - keep a managed VM safe across host shutdown",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(commandContext(cmd))
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	// All runtime settings come from the config file or VMSENTINEL_* env;
	// the persistent flag surface is limited to picking the file. Env keys
	// must be bound explicitly to take part in Unmarshal.
	viper.SetEnvPrefix("VMSENTINEL")
	viper.AutomaticEnv()
	for _, key := range []string{
		"state_dir", "run_dir", "lock_dir", "vm_name",
		"signal_name", "debounce_ms", "heartbeat_seconds", "hold_retry_seconds",
	} {
		_ = viper.BindEnv(key)
	}

	base := cmdcore.BaseHandler{ConfProvider: func() *config.Config { return conf }}

	for _, c := range cmdwatcher.Commands(cmdwatcher.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}
	for _, c := range cmdguard.Commands(cmdguard.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}
	for _, c := range cmdothers.Commands(cmdothers.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}

	return cmd
}()

// initConfig resolves configuration with explicit precedence:
// defaults ← config file ← environment. Resolution happens exactly once,
// here; everything downstream receives the finished value.
func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	_ = viper.ReadInConfig() // optional; missing file is OK

	// Config carries json tags only; viper's default mapstructure matching
	// would drop every multi-word key (vm_name, state_dir, …).
	if err := viper.Unmarshal(conf, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
	}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	conf.Normalize()
	if err := conf.Validate(); err != nil {
		return err
	}

	return log.SetupLog(ctx, &conf.Log, "")
}

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := newCommandContext()
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

// newCommandContext cancels on the usual termination signals so both
// reactors observe OS-delivered stop requests through one channel.
func newCommandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
