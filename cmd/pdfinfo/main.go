package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"pdflib"
	"pdflib/document"
	"pdflib/objects"
	"pdflib/observability"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: pdfinfo <pdf> [password] [objnum]")
		os.Exit(1)
	}
	password := ""
	if len(os.Args) > 2 {
		password = os.Args[2]
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		panic(err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		panic(err)
	}

	logger := observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	doc, err := document.Open(f, st.Size(), document.Config{Password: password, Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("file:      %s (%s)\n", os.Args[1], pdflib.HumanReadableBytes(st.Size()))
	fmt.Printf("version:   %s\n", doc.Version())
	fmt.Printf("objects:   %d\n", doc.XRef().Len())
	fmt.Printf("encrypted: %v\n", doc.IsEncrypted())
	fmt.Printf("repaired:  %v\n", doc.Repaired())
	fmt.Println("trailer:")
	objects.Dump(os.Stdout, doc.Trailer())

	if len(os.Args) > 3 {
		num, err := strconv.ParseUint(os.Args[3], 10, 32)
		if err != nil {
			panic(err)
		}
		obj, err := doc.Resolve(objects.Reference{Num: uint32(num)})
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("object %d:\n", num)
		objects.Dump(os.Stdout, obj)
	}

	if diags := doc.Diagnostics(); len(diags) > 0 {
		fmt.Printf("recovered from %d defect(s):\n", len(diags))
		for _, d := range diags {
			fmt.Printf("  [%s @%d] %v\n", d.Loc.Component, d.Loc.ByteOffset, d.Err)
		}
	}
}
