package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"unicode"
)

const usageFmt = `
Command Usage: %s [Flags]
  Generate PowerAuth activation, signature & ECIES test vectors.

Flags:
------
`

type Cmd struct {
	Out     *json.Encoder
	Factors []string
	Repeat  int
}

var defaultFactors = []string{
	"possession",
	"possession_knowledge",
	"possession_biometry",
	"possession_knowledge_biometry",
}

func parseFlags(progname string, args []string) *Cmd {
	cmd := Cmd{}

	flags := flag.NewFlagSet(progname, flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, usageFmt, path.Base(progname))
		flags.PrintDefaults()
	}

	var outPath string
	flags.StringVar(&outPath, "o", "-", `path where to save the generated vectors`)

	var factors []string
	const factorDoc = `
	Signature factor combination.
	Add more than 1 by repeating this option.
	Defaults to all supported combinations %+v.
	`
	flags.Func("fa", dedent(fmt.Sprintf(factorDoc, defaultFactors)), func(v string) error {
		for _, known := range defaultFactors {
			if v == known {
				factors = append(factors, v)
				return nil
			}
		}
		return fmt.Errorf("Invalid factor combination %s", v)
	})

	var repeat uint
	flags.UintVar(&repeat, "n", 10, `number of vectors to generate for each factor combination`)

	flags.Parse(args)

	// set cmd.Out
	var err error
	var outFile *os.File
	if "-" != outPath {
		outFile, err = os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if nil != err {
			log.Fatalf("Failed opening %s, got error %v", outPath, err)
		}
	} else {
		outFile = os.Stdout
	}
	enc := json.NewEncoder(outFile)
	enc.SetIndent("", "  ")
	cmd.Out = enc

	// set cmd.Factors
	if len(factors) == 0 {
		factors = defaultFactors
	}
	cmd.Factors = factors

	// set cmd.Repeat
	cmd.Repeat = int(repeat)

	return &cmd
}

func main() {
	cmd := parseFlags(os.Args[0], os.Args[1:])

	var err error
	var vectors []TestVector
	for _, factor := range cmd.Factors {
		for i := 0; i < cmd.Repeat; i++ {
			vector := TestVector{}
			err = fillVector(factor, &vector)
			if nil != err {
				log.Fatalf("Failed generating TestVector, got error %v", err)
			}
			vectors = append(vectors, vector)
		}
	}
	err = cmd.Out.Encode(vectors)
	if nil != err {
		log.Fatalf("Failed serializing []TestVector, got error %v", err)
	}
}

func dedent(multilines string) string {
	var sb strings.Builder
	for _, line := range splitLines(strings.TrimRightFunc(multilines, unicode.IsSpace)) {
		sb.WriteString(strings.TrimLeftFunc(line, unicode.IsSpace))
	}
	return sb.String()
}

// splitLines returns the substrings of s that consist of a single line,
// including any trailing end-of-line sequence.
func splitLines(s string) []string {
	var rv []string
	for len(s) > 0 {
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			rv = append(rv, s)
			break
		}
		rv = append(rv, s[:idx+1])
		s = s[idx+1:]
	}
	return rv
}
