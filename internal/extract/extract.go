package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gnaf-verify/internal/normalize"
	"github.com/gnaf-verify/internal/reference"
)

// Hints are structured fields supplied alongside the free-text lines. A
// hinted value anchors the corresponding component without being parsed
// out of the text.
type Hints struct {
	Suburb   string
	State    string
	Postcode string
}

// Partition is one plausible street/locality split of the remaining
// tokens. When the split is ambiguous every plausible partition is
// forwarded and the matcher tries them in order.
type Partition struct {
	StreetTokens   []string
	StreetType     string // authority type code, empty when absent
	StreetSuffix   string // authority suffix code, empty when absent
	LocalityTokens []string
}

// StreetName returns the partition's street name as one normalized string.
func (p Partition) StreetName() string {
	return strings.Join(p.StreetTokens, " ")
}

// LocalityName returns the partition's locality text as one string.
func (p Partition) LocalityName() string {
	return strings.Join(p.LocalityTokens, " ")
}

// Components is the structured form of a normalized address.
type Components struct {
	Flat          string
	Level         string
	ServiceNumber string
	Lot           string
	Number        int // house number; for a range, the range end
	NumberFirst   int // range start, zero unless a range was given
	Postcode      string
	StatePid      string
	SuburbHint    string // hinted suburb, already cleaned
	Partitions    []Partition
	Ambiguous     bool
	Steps         []string
}

var (
	rePostcode    = regexp.MustCompile(`^\d{4}$`)
	reNTShort     = regexp.MustCompile(`^8\d{2}$`)
	reFused       = regexp.MustCompile(`^([A-Z]{2,3})(\d{4})$`)
	reHouseNumber = regexp.MustCompile(`^(\d+)([A-Z]?)$`)
	reHouseRange  = regexp.MustCompile(`^(\d+)-(\d+)$`)
	reUnitSlash   = regexp.MustCompile(`^(\d+[A-Z]?)/(\d+)([A-Z]?)$`)
)

// Options controls extraction conventions.
type Options struct {
	// NTPostcodes accepts the three-digit Northern Territory habit of
	// dropping the leading zero, reading 8dd as 08dd.
	NTPostcodes bool
}

type Parser struct {
	idx  *reference.Index
	opts Options
	log  zerolog.Logger
}

func New(idx *reference.Index, opts Options, log zerolog.Logger) *Parser {
	return &Parser{idx: idx, opts: opts, log: log.With().Str("component", "extract").Logger()}
}

// Extract structures the normalized address. It never fails: missing
// pieces stay zero and at least one partition is always produced for
// non-empty input.
func (p *Parser) Extract(res normalize.Result, hints Hints) Components {
	comps := Components{}
	if res.Flat != nil {
		comps.Flat = res.Flat.Number
	}
	if res.Level != nil {
		comps.Level = res.Level.Number
	}
	if res.Service != nil {
		comps.ServiceNumber = res.Service.Number
	}

	tokens := append([]string(nil), res.Tokens...)
	tokens = p.takeTrailingAnchors(tokens, &comps)
	p.applyHints(hints, &comps)
	tokens = p.takeLeadingNumbers(tokens, &comps)
	p.partition(tokens, &comps)
	return comps
}

// takeTrailingAnchors strips postcode and state tokens off the end of the
// line, in either order, including fused forms such as QLD2844.
func (p *Parser) takeTrailingAnchors(tokens []string, comps *Components) []string {
	for len(tokens) > 0 {
		last := tokens[len(tokens)-1]

		if comps.Postcode == "" && rePostcode.MatchString(last) && p.idx.IsPostcode(last) {
			comps.Postcode = last
			comps.step("postcode " + last)
			tokens = tokens[:len(tokens)-1]
			continue
		}
		if comps.Postcode == "" && p.opts.NTPostcodes && reNTShort.MatchString(last) && p.idx.IsPostcode("0"+last) {
			comps.Postcode = "0" + last
			comps.step("postcode 0" + last + " (NT short form)")
			tokens = tokens[:len(tokens)-1]
			continue
		}

		if m := reFused.FindStringSubmatch(last); m != nil && comps.Postcode == "" {
			if st, ok := p.idx.StateByToken(m[1]); ok && p.idx.IsPostcode(m[2]) {
				comps.StatePid = st.Pid
				comps.Postcode = m[2]
				comps.step("fused state+postcode " + last)
				tokens = tokens[:len(tokens)-1]
				continue
			}
		}

		if comps.StatePid == "" {
			if n, pid := p.trailingState(tokens); n > 0 {
				comps.StatePid = pid
				comps.step("state " + strings.Join(tokens[len(tokens)-n:], " "))
				tokens = tokens[:len(tokens)-n]
				continue
			}
		}
		break
	}
	return tokens
}

// trailingState tries the last one to three tokens as a state abbreviation
// or full name, longest phrase first.
func (p *Parser) trailingState(tokens []string) (n int, pid string) {
	for take := 3; take >= 1; take-- {
		if take > len(tokens) {
			continue
		}
		phrase := strings.Join(tokens[len(tokens)-take:], " ")
		if st, ok := p.idx.StateByToken(phrase); ok {
			return take, st.Pid
		}
	}
	return 0, ""
}

func (p *Parser) applyHints(hints Hints, comps *Components) {
	if hints.Postcode != "" && comps.Postcode == "" {
		pc := strings.TrimSpace(hints.Postcode)
		if p.opts.NTPostcodes && reNTShort.MatchString(pc) {
			pc = "0" + pc
		}
		comps.Postcode = pc
		comps.step("postcode hint " + pc)
	}
	if hints.State != "" && comps.StatePid == "" {
		if st, ok := p.idx.StateByToken(hints.State); ok {
			comps.StatePid = st.Pid
			comps.step("state hint " + st.Abbreviation)
		}
	}
	if hints.Suburb != "" {
		comps.SuburbHint = reference.CleanName(hints.Suburb)
		comps.step("suburb hint " + comps.SuburbHint)
	}
}

// takeLeadingNumbers consumes lot numbers, unit/house compounds and house
// number ranges from the front of the line. Numeric fields are copied
// verbatim; they are never fuzzed downstream.
func (p *Parser) takeLeadingNumbers(tokens []string, comps *Components) []string {
	// A flat marker surviving normalization sits before a compound like
	// 3/45; drop the marker and let the compound rule take over.
	if len(tokens) >= 2 && reUnitSlash.MatchString(tokens[1]) {
		for _, m := range p.idx.FlatMarkers() {
			if tokens[0] == m {
				tokens = tokens[1:]
				break
			}
		}
	}

	for len(tokens) > 0 {
		tok := tokens[0]

		if tok == "LOT" && len(tokens) > 1 {
			comps.Lot = tokens[1]
			comps.step("lot " + tokens[1])
			tokens = tokens[2:]
			continue
		}
		if m := reUnitSlash.FindStringSubmatch(tok); m != nil {
			if comps.Flat == "" {
				comps.Flat = m[1]
			}
			comps.Number, _ = strconv.Atoi(m[2])
			comps.step("unit/number " + tok)
			tokens = tokens[1:]
			continue
		}
		if m := reHouseRange.FindStringSubmatch(tok); m != nil && comps.Number == 0 {
			comps.NumberFirst, _ = strconv.Atoi(m[1])
			comps.Number, _ = strconv.Atoi(m[2])
			comps.step("number range " + tok)
			tokens = tokens[1:]
			continue
		}
		if m := reHouseNumber.FindStringSubmatch(tok); m != nil && comps.Number == 0 && len(tokens) > 1 {
			comps.Number, _ = strconv.Atoi(m[1])
			comps.step("number " + tok)
			tokens = tokens[1:]
			continue
		}
		break
	}
	return tokens
}

// partition proposes street/locality splits of what remains. Every street
// type token is a plausible boundary; the rightmost split comes first
// since type words late in the line are most often the real type. With no
// type token the text could be street-only or locality-only, so both
// readings are forwarded.
func (p *Parser) partition(tokens []string, comps *Components) {
	if len(tokens) == 0 {
		return
	}

	for i := len(tokens) - 1; i >= 1; i-- {
		code, ok := p.idx.StreetTypeCode(tokens[i])
		if !ok {
			continue
		}
		rest := tokens[i+1:]

		if len(rest) > 0 {
			if suffix, ok := p.idx.StreetSuffixCode(rest[0]); ok {
				comps.add(Partition{
					StreetTokens:   tokens[:i],
					StreetType:     code,
					StreetSuffix:   suffix,
					LocalityTokens: rest[1:],
				})
				// The suffix word may instead open the locality
				// name, so the unconsumed reading follows.
			}
		}
		comps.add(Partition{
			StreetTokens:   tokens[:i],
			StreetType:     code,
			LocalityTokens: rest,
		})
	}

	if len(comps.Partitions) == 0 {
		comps.add(Partition{StreetTokens: tokens})
		comps.add(Partition{LocalityTokens: tokens})
	}

	if len(comps.Partitions) > 1 {
		comps.Ambiguous = true
	}
}

func (c *Components) add(p Partition) {
	c.Partitions = append(c.Partitions, p)
}

func (c *Components) step(s string) {
	c.Steps = append(c.Steps, s)
}
