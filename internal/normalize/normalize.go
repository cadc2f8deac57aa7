package normalize

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gnaf-verify/internal/reference"
)

// Marker is a flat or level annotation lifted out of the address line, such
// as FLAT 5 or LEVEL 2.
type Marker struct {
	Marker string
	Number string
}

// Service is a postal service delivery match such as PO BOX 12.
type Service struct {
	Code        string
	Number      string
	Cardinality reference.Cardinality
}

// Step records one normalization stage that changed the line, for the
// diagnostic trail.
type Step struct {
	Name   string
	Before string
	After  string
}

// Result is the canonical form of an input address. Line and Tokens are
// never mutated after Normalize returns.
type Result struct {
	Line       string
	Tokens     []string
	Flat       *Marker
	Level      *Marker
	Service    *Service
	Trimmed    []string
	Violations []string
	Steps      []Step
}

// ViolationCardinality prefixes the diagnostic recorded when a Required
// service delivery rule has no following number.
const ViolationCardinality = "ServiceDeliveryCardinalityViolation"

// Normalizer folds raw address text into canonical tokens using the
// override rules held by the reference index.
type Normalizer struct {
	idx *reference.Index
	log zerolog.Logger
}

func New(idx *reference.Index, log zerolog.Logger) *Normalizer {
	return &Normalizer{idx: idx, log: log.With().Str("component", "normalize").Logger()}
}

var (
	reDashedNumbers  = regexp.MustCompile(`(\d[A-Z]?)\s*-\s*(\d)`)
	reSlashedNumbers = regexp.MustCompile(`(\d[A-Z]?)\s*/\s*(\d)`)
	reNumberToken    = regexp.MustCompile(`^\d+[A-Z]?$`)
)

// Clean upper-cases the text, turns punctuation into spaces and collapses
// whitespace. Hyphens and slashes joining numbers are kept, so 10 - 20
// becomes 10-20 and 3 / 45 becomes 3/45. Clean is idempotent.
func Clean(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '/':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	s = strings.Join(strings.Fields(b.String()), " ")
	s = reDashedNumbers.ReplaceAllString(s, "$1-$2")
	s = reSlashedNumbers.ReplaceAllString(s, "$1/$2")
	// Hyphens and slashes not joining numbers are separators.
	s = strings.NewReplacer(" -", " ", "- ", " ", " /", " ", "/ ", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Normalize runs the full pipeline: clean, trim overrides, service delivery
// rules, flat and level markers. The output is stable under
// re-normalization of its own Line.
func (n *Normalizer) Normalize(raw string) Result {
	res := Result{}

	line := Clean(raw)
	res.record("clean", raw, line)
	line = n.applyTrims(line, &res)
	line = n.applyServiceRules(line, &res)
	line = n.applyMarkers(line, &res)

	res.Line = line
	res.Tokens = strings.Fields(line)
	if len(res.Violations) > 0 {
		n.log.Debug().Str("line", line).Strs("violations", res.Violations).Msg("normalized with violations")
	}
	return res
}

func (r *Result) record(name, before, after string) {
	if before != after {
		r.Steps = append(r.Steps, Step{Name: name, Before: before, After: after})
	}
}

// applyTrims strips leading text matching an override trim rule, such as
// an unregistered building name prefix. Rules are reapplied until none
// match, so stacked prefixes all come off.
func (n *Normalizer) applyTrims(line string, res *Result) string {
	for {
		trimmed := false
		for _, pattern := range n.idx.TrimPatterns() {
			loc := pattern.FindStringIndex(line)
			if loc == nil {
				continue
			}
			cut := strings.TrimSpace(line[loc[0]:loc[1]])
			after := strings.TrimSpace(line[loc[1]:])
			res.Trimmed = append(res.Trimmed, cut)
			res.record("trim", line, after)
			line = after
			trimmed = true
		}
		if !trimmed {
			return line
		}
	}
}

// applyServiceRules handles postal service delivery text. The first
// matching rule (longest code first) wins. A following number is consumed
// only when the rule's cardinality allows one; the number may sit up to two
// tokens past the rule text, so CARE PO BOX 12 still yields 12. A Required
// rule with no number in reach is a cardinality violation: the diagnostic
// is recorded and the text is left alone.
func (n *Normalizer) applyServiceRules(line string, res *Result) string {
	for _, rule := range n.idx.ServiceRules() {
		loc := rule.Pattern.FindStringIndex(line)
		if loc == nil {
			continue
		}

		head := strings.TrimSpace(line[:loc[0]])
		tail := strings.Fields(line[loc[1]:])

		number := ""
		numberAt := -1
		if rule.Cardinality != reference.CardinalityNever {
			for i := 0; i < len(tail) && i < 3; i++ {
				if reNumberToken.MatchString(tail[i]) {
					number, numberAt = tail[i], i
					break
				}
			}
		}

		if rule.Cardinality == reference.CardinalityRequired && number == "" {
			res.Violations = append(res.Violations,
				ViolationCardinality+": "+rule.Code+" requires a following number")
			return line
		}

		if numberAt >= 0 {
			tail = append(tail[:numberAt], tail[numberAt+1:]...)
		}
		rest := strings.Join(append(strings.Fields(head), tail...), " ")
		res.Service = &Service{Code: rule.Code, Number: number, Cardinality: rule.Cardinality}
		res.record("service", line, rest)
		return rest
	}
	return line
}

// applyMarkers lifts flat/unit and level annotations out of the line.
func (n *Normalizer) applyMarkers(line string, res *Result) string {
	tokens := strings.Fields(line)

	extract := func(markers []string) *Marker {
		for i := 0; i+1 < len(tokens); i++ {
			for _, m := range markers {
				if tokens[i] != m || !reNumberToken.MatchString(tokens[i+1]) {
					continue
				}
				found := &Marker{Marker: m, Number: tokens[i+1]}
				tokens = append(tokens[:i], tokens[i+2:]...)
				return found
			}
		}
		return nil
	}

	if res.Flat = extract(n.idx.FlatMarkers()); res.Flat != nil {
		after := strings.Join(tokens, " ")
		res.record("flat", line, after)
		line = after
	}
	if res.Level = extract(n.idx.LevelMarkers()); res.Level != nil {
		after := strings.Join(tokens, " ")
		res.record("level", line, after)
		line = after
	}
	return line
}
