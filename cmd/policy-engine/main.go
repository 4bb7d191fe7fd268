package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes: 0 graceful shutdown, 1 configuration error, 2 fatal runtime
// error.
const (
	exitOK      = 0
	exitConfig  = 1
	exitRuntime = 2
)

// runtimeError marks failures that happen after startup completed.
type runtimeError struct {
	err error
}

func (e *runtimeError) Error() string {
	return e.err.Error()
}

func (e *runtimeError) Unwrap() error {
	return e.err
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var rt *runtimeError
		if errors.As(err, &rt) {
			return exitRuntime
		}
		return exitConfig
	}
	return exitOK
}
