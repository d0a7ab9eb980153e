package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

type ConfigInitFlags struct {
	Force bool
}

type TabsFlags struct {
	URL     string
	JSON    bool
	Timeout time.Duration
}
