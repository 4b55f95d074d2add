//go:build !windows
// +build !windows

package binutil

import (
	"os"

	"github.com/sevlyar/go-daemon"
	"github.com/xiaonanln/gostream/engine/gwlog"
)

// Daemonize forks the process into the background and returns the context of the child; the parent exits.
// pidFile is locked by the child while it runs, empty for none.
func Daemonize(pidFile string) *daemon.Context {
	context := &daemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0644,
		Umask:       027,
	}
	child, err := context.Reborn()
	if err != nil {
		gwlog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		gwlog.Infof("run in daemon mode: pid %d", child.Pid)
		os.Exit(0)
	}
	return context
}
