// config.go - Driver configuration (spec.md S6.4)
//
// Recognized keys map 1:1 onto command-line flags, in the style of the
// pack's other VM driver (KTStephano-GVM main.go): flags registered on a
// caller-supplied FlagSet and parsed once, no config-file library anywhere
// in the corpus.

package nlpmodel

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// AddrRange is one entry of the nlp_mmio range list (spec.md S6.4).
type AddrRange struct {
	Start, End uint32
}

func (r AddrRange) Contains(addr uint32) bool { return addr >= r.Start && addr <= r.End }

// Config holds every key spec.md S6.4 recognizes, plus the compliance
// access budget the harness can override.
type Config struct {
	NLPFileName      string
	NLPMMIO          []AddrRange
	ForkPoint        uint32
	UseFuzzer        bool
	CCFileName       string
	ComplianceBudget int
	OutDir           string
}

// ParseAddrRangeList parses a comma-separated `start-end` list, e.g.
// "0x40000000-0x40001000,0x40004000-0x40005000".
func ParseAddrRangeList(s string) ([]AddrRange, error) {
	if s == "" {
		return nil, nil
	}
	var out []AddrRange
	for _, part := range strings.Split(s, ",") {
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("nlp_mmio range %q: want start-end", part)
		}
		start, err := parseHexAddr(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, fmt.Errorf("nlp_mmio range %q: %w", part, err)
		}
		end, err := parseHexAddr(strings.TrimSpace(bounds[1]))
		if err != nil {
			return nil, fmt.Errorf("nlp_mmio range %q: %w", part, err)
		}
		out = append(out, AddrRange{Start: start, End: end})
	}
	return out, nil
}

// ParseFlags parses os.Args-style arguments into a Config. Exposed
// separately from main() so tests can exercise it with a fake argv.
func ParseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	var mmio, forkPoint string

	fs.StringVar(&cfg.NLPFileName, "NLPfileName", "", "path to the NLP peripheral description file")
	fs.StringVar(&mmio, "nlp_mmio", "", "comma-separated list of start-end MMIO ranges")
	fs.StringVar(&forkPoint, "forkPoint", "0x0", "PC at which the fuzzer boundary is reached")
	fs.BoolVar(&cfg.UseFuzzer, "useFuzzer", false, "pull RX bytes from a fuzzer harness instead of a fixed test vector")
	fs.StringVar(&cfg.CCFileName, "CCfileName", "", "path to the compliance sequence file")
	fs.IntVar(&cfg.ComplianceBudget, "complianceBudget", DefaultComplianceBudget, "compliance logical-clock ceiling before the process exits non-zero")
	fs.StringVar(&cfg.OutDir, "outDir", ".", "directory to write NLPStatistics.dat and ComplianceCheck.dat into")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.NLPFileName == "" {
		return nil, fmt.Errorf("NLPfileName is required")
	}
	ranges, err := ParseAddrRangeList(mmio)
	if err != nil {
		return nil, err
	}
	cfg.NLPMMIO = ranges

	fp, err := strconv.ParseUint(strings.TrimPrefix(forkPoint, "0x"), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("forkPoint %q: %w", forkPoint, err)
	}
	cfg.ForkPoint = uint32(fp)

	return cfg, nil
}
