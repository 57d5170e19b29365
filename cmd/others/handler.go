package others

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/projecteru2/vmsentinel/cmd/core"
	storejson "github.com/projecteru2/vmsentinel/storage/json"
	"github.com/projecteru2/vmsentinel/stopsignal"
	"github.com/projecteru2/vmsentinel/types"
	"github.com/projecteru2/vmsentinel/utils"
)

const (
	guardExitWaitTimeout  = 30 * time.Second
	guardExitPollInterval = 200 * time.Millisecond
)

// Handler implements Actions.
type Handler struct {
	core.BaseHandler
}

var _ Actions = Handler{}

// Stop is the preshutdown tripwire: set the STOP signal of the running guard
// and exit. It opens the existing endpoint by name; it never creates one.
func (h Handler) Stop(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return core.Exit(core.ExitCodeConfig, err)
	}

	path := conf.SignalPath()
	if err := stopsignal.Set(path); err != nil {
		return core.Exit(core.ExitCodeConfig, fmt.Errorf("set STOP signal: %w", err))
	}
	log.WithFunc("others.Stop").Infof(ctx, "STOP signal set on %s", path)

	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		// The guard removes its endpoint during termination hardening, so
		// the socket disappearing means the guard is gone.
		err := utils.WaitFor(ctx, guardExitWaitTimeout, guardExitPollInterval, func() (bool, error) {
			return !stopsignal.Exists(path), nil
		})
		if err != nil {
			log.WithFunc("others.Stop").Warnf(ctx, "guard did not exit in time: %v", err)
		}
	}
	return nil
}

// Status prints a diagnostics table: what the hypervisor says, what the flag
// mirrors, and whether the two reactors are present.
func (h Handler) Status(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return core.Exit(core.ExitCodeConfig, err)
	}

	lockExists := utils.DirExists(conf.LockResourcePath())
	flagExists := utils.Exists(conf.FlagPath())

	var rec *types.StatusRecord
	store := storejson.New[types.StatusIndex](conf.StatusLockPath(), conf.StatusDBPath())
	if err := store.With(ctx, func(idx *types.StatusIndex) error {
		rec = idx.Records[conf.VMName]
		return nil
	}); err != nil {
		log.WithFunc("others.Status").Warnf(ctx, "read status DB: %v", err)
	}

	watcherAlive := false
	if pid, err := utils.ReadPIDFile(conf.WatcherPIDPath()); err == nil {
		watcherAlive = utils.IsProcessAlive(pid)
	}
	guardPresent := stopsignal.Exists(conf.SignalPath())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "VM\t%s\n", conf.VMName)
	fmt.Fprintf(w, "lock resource\t%s\t%s\n", conf.LockResourcePath(), presence(lockExists))
	fmt.Fprintf(w, "presence flag\t%s\t%s\n", conf.FlagPath(), presence(flagExists))
	if rec != nil {
		fmt.Fprintf(w, "last transition\t%s\tat %s\n", rec.State, rec.ChangedAt.Local().Format(time.DateTime))
	} else {
		fmt.Fprintf(w, "last transition\tnone recorded\n")
	}
	fmt.Fprintf(w, "watcher\t%s\n", alive(watcherAlive))
	fmt.Fprintf(w, "guard\t%s\n", alive(guardPresent))
	return w.Flush()
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "absent"
}

func alive(ok bool) string {
	if ok {
		return "running"
	}
	return "not running"
}
