package safego

import (
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/datazip-inc/gorgias-tap/utils/logger"
)

var startTime = time.Now()

// Run runs f in a new goroutine with a panic handler that logs and swallows the panic.
func Run(f func()) {
	go func() {
		defer Recovery(false)
		f()
	}()
}

// Recovery logs a recovered panic with its stack trace. With exit set the process
// terminates with a non-zero code afterwards.
func Recovery(exit bool) {
	err := recover()
	if err != nil {
		logger.Error(err)
		for _, str := range strings.Split(string(debug.Stack()), "\n") {
			logger.Error(strings.ReplaceAll(str, "\t", ""))
		}
	}
	if exit {
		logger.Infof("Time of execution %v", time.Since(startTime).String())
		os.Exit(1)
	}
}

// Insert sends value on ch and reports false instead of panicking when ch is closed.
func Insert[T any](ch chan<- T, value T) bool {
	inserted := false
	func() {
		defer Recovery(false)
		ch <- value
		inserted = true
	}()
	return inserted
}
