// Command yieldfit runs signal-plus-background yield fits on toy samples and
// inspects the stored results.
//
// Examples:
//
//	yieldfit demo --entries 20000 --fsig 0.05 --out jpsi.yfc
//	yieldfit inspect jpsi.yfc
//	yieldfit demo --archive runs.db --constrain sig_mean,sig_sigma --aux-entries 5000
//	yieldfit archive list --db runs.db
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
