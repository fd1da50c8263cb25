package main

import "flag"

// flagSet wraps flag.FlagSet with ContinueOnError behavior, so a parse
// error is returned to the caller instead of exiting the process.
type flagSet struct {
	*flag.FlagSet
}

func newCustomFlagSet(name string) *flagSet {
	return &flagSet{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError)}
}
