//go:build linux

package main

import "os"

func processPID() int {
	return os.Getpid()
}
