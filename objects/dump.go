package objects

import (
	"io"

	"github.com/davecgh/go-spew/spew"
)

var dumpConfig = spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true, SortKeys: true}

// Dump writes a deep, human-readable rendering of an object graph to w.
// Intended for inspection tools and test failure output.
func Dump(w io.Writer, objs ...Object) {
	args := make([]interface{}, len(objs))
	for i, o := range objs {
		args[i] = o
	}
	dumpConfig.Fdump(w, args...)
}

// Sdump is Dump into a string.
func Sdump(objs ...Object) string {
	args := make([]interface{}, len(objs))
	for i, o := range objs {
		args[i] = o
	}
	return dumpConfig.Sdump(args...)
}
