package app

import "os"

func SetExitFn(fn func(int)) (restore func()) {
	prev := exitFn
	if fn != nil {
		exitFn = fn
	} else {
		exitFn = os.Exit
	}
	return func() { exitFn = prev }
}
