// Command udc-replay replays scripted USB bus events against the device
// controller core running on a simulated peripheral and reports how each
// interrupt activation was dispatched.
//
// Usage:
//
//	udc-replay run [--builtin] [scenario.yaml ...]
//	udc-replay list
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
