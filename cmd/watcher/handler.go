package watcher

import (
	"os"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/projecteru2/vmsentinel/cmd/core"
	"github.com/projecteru2/vmsentinel/utils"
	"github.com/projecteru2/vmsentinel/watcher"
)

// Handler implements Actions.
type Handler struct {
	core.BaseHandler
}

var _ Actions = Handler{}

// Run starts the state watcher and blocks until a stop signal cancels the
// command context.
func (h Handler) Run(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return core.Exit(core.ExitCodeConfig, err)
	}
	if err := conf.EnsureDirs(); err != nil {
		return core.Exit(core.ExitCodeConfig, err)
	}

	if attach, _ := cmd.Flags().GetBool("debug-attach"); attach {
		core.DebugAttachPause(ctx)
	}
	verboseFS, _ := cmd.Flags().GetBool("verbose-fs")

	instance, err := core.AcquireInstanceLock(ctx, conf.WatcherLockPath())
	if err != nil {
		return err
	}
	defer instance.Unlock(ctx) //nolint:errcheck

	if err := utils.WritePIDFile(conf.WatcherPIDPath(), os.Getpid()); err != nil {
		log.WithFunc("watcher.Run").Warnf(ctx, "write PID file: %v", err)
	}
	defer os.Remove(conf.WatcherPIDPath()) //nolint:errcheck

	w, err := watcher.New(conf, verboseFS)
	if err != nil {
		return core.Exit(core.ExitCodeWatchInit, err)
	}
	return w.Run(ctx)
}
