package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"pdflib/recovery"
	"pdflib/scanner"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: pdftok <pdf>")
		os.Exit(1)
	}
	f, err := os.Open(os.Args[1])
	if err != nil {
		panic(err)
	}
	defer f.Close()

	s := scanner.New(f, scanner.Config{Recovery: recovery.NewLenient(nil)})
	for i := 0; i < 200000; i++ { // limit to avoid flooding
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Printf("ERR: %v\n", err)
			break
		}
		switch tok.Type {
		case scanner.TokenNumber:
			if tok.IsInt {
				fmt.Printf("%8d num  %d\n", tok.Pos, tok.Int)
			} else {
				fmt.Printf("%8d num  %g\n", tok.Pos, tok.Float)
			}
		case scanner.TokenName:
			fmt.Printf("%8d name /%s\n", tok.Pos, tok.Str)
		case scanner.TokenString:
			fmt.Printf("%8d str  %q\n", tok.Pos, tok.Bytes)
		case scanner.TokenRef:
			fmt.Printf("%8d ref  %d %d R\n", tok.Pos, tok.Num, tok.Gen)
		case scanner.TokenStream:
			fmt.Printf("%8d stream (%d bytes)\n", tok.Pos, len(tok.Bytes))
		default:
			fmt.Printf("%8d tok  %d %s\n", tok.Pos, tok.Type, tok.Str)
		}
	}
}
