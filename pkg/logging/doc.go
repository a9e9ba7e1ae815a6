// Package logging provides the logrus root logger shared by every component
// of relayer-ctr. Components call New with their name and log through the
// returned field logger; the process entrypoint adjusts the root with Set.
package logging
