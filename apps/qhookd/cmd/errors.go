package cmd

import (
	"fmt"
	"os"

	"github.com/quatton/qhook/pkg/qerr"
)

// exitIfRejected prints the reasons of a rejected request and exits. Other
// errors are returned to cobra.
func exitIfRejected(err error) error {
	if err == nil {
		return nil
	}
	if !qerr.IsCode(err, qerr.CodeValidation) && !qerr.IsCode(err, qerr.CodeDispatch) {
		return err
	}
	fmt.Fprintln(os.Stderr, "request rejected:")
	for _, r := range qerr.Reasons(err) {
		fmt.Fprintf(os.Stderr, "  ❌ %s\n", r)
	}
	os.Exit(1)
	return nil
}
