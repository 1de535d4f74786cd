package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

type RunFlags struct {
	Browser     string
	NoRecord    bool
	ArtifactURL string
	HistoryDSN  string
	MetricsFile string
}

type ProbeFlags struct {
	Host     string
	Port     int
	Delay    time.Duration
	DelaySet bool // --delay given explicitly, even as 0
}

type DiscoverFlags struct {
	All bool
}
