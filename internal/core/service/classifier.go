package service

import (
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/mailgate/gate-service/internal/core/domain"
	"github.com/mailgate/gate-service/internal/core/ports"
)

// DefaultUserAgentTokens are substrings of user agents sent by automation
// tools and HTTP libraries. Matching is case-insensitive.
var DefaultUserAgentTokens = []string{
	"bot", "crawler", "spider", "scrapy", "curl", "wget", "httpie",
	"python-requests", "python-urllib", "aiohttp", "go-http-client",
	"java/", "okhttp", "libwww", "axios", "node-fetch", "postman",
	"headless", "phantomjs", "selenium", "puppeteer", "playwright",
}

// DefaultMinInteraction is the shortest plausible time between page load and
// form submission for a human.
const DefaultMinInteraction = 2 * time.Second

var identifierShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Predicate is one step of the classification chain. It returns a terminal
// verdict and true when it fires.
type Predicate interface {
	Name() string
	Check(in ports.VerifyInput, now time.Time) (domain.Verdict, bool)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc struct {
	name string
	fn   func(in ports.VerifyInput, now time.Time) (domain.Verdict, bool)
}

func (p PredicateFunc) Name() string { return p.name }

func (p PredicateFunc) Check(in ports.VerifyInput, now time.Time) (domain.Verdict, bool) {
	return p.fn(in, now)
}

// Honeypot fires on any non-empty hidden-field value.
func Honeypot() Predicate {
	return PredicateFunc{name: "honeypot", fn: func(in ports.VerifyInput, _ time.Time) (domain.Verdict, bool) {
		if in.Honeypot != "" {
			return domain.Verdict{Outcome: domain.OutcomeAutomated, Reason: domain.ReasonHoneypot}, true
		}
		return domain.Verdict{}, false
	}}
}

// OriginPolicy denies blocked addresses and regions. Entries in blocked may
// be single addresses or CIDR prefixes; malformed entries are skipped and
// returned so the caller can report them.
func OriginPolicy(blocked []string, regions []string) (Predicate, []string) {
	var prefixes []netip.Prefix
	var rejected []string
	for _, b := range blocked {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if p, err := netip.ParsePrefix(b); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(b); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
			continue
		}
		rejected = append(rejected, b)
	}
	denyRegion := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			denyRegion[r] = struct{}{}
		}
	}

	return PredicateFunc{name: "origin", fn: func(in ports.VerifyInput, _ time.Time) (domain.Verdict, bool) {
		if len(prefixes) > 0 {
			if addr, err := netip.ParseAddr(in.RemoteIP); err == nil {
				addr = addr.Unmap()
				for _, p := range prefixes {
					if p.Contains(addr) {
						return domain.Verdict{Outcome: domain.OutcomeDenied, Reason: domain.ReasonBlockedIP}, true
					}
				}
			}
		}
		if _, ok := denyRegion[strings.ToUpper(strings.TrimSpace(in.Region))]; ok {
			return domain.Verdict{Outcome: domain.OutcomeDenied, Reason: domain.ReasonBlockedRegion}, true
		}
		return domain.Verdict{}, false
	}}, rejected
}

// UserAgent fires when the user agent contains any automation token. An
// empty user agent fires too when blockEmpty is set.
func UserAgent(tokens []string, blockEmpty bool) Predicate {
	lowered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	return PredicateFunc{name: "user_agent", fn: func(in ports.VerifyInput, _ time.Time) (domain.Verdict, bool) {
		ua := strings.ToLower(strings.TrimSpace(in.UserAgent))
		if ua == "" {
			if blockEmpty {
				return domain.Verdict{Outcome: domain.OutcomeAutomated, Reason: domain.ReasonEmptyUserAgent}, true
			}
			return domain.Verdict{}, false
		}
		for _, t := range lowered {
			if strings.Contains(ua, t) {
				return domain.Verdict{Outcome: domain.OutcomeAutomated, Reason: domain.ReasonUserAgent}, true
			}
		}
		return domain.Verdict{}, false
	}}
}

// InteractionTiming fires when the form was submitted faster than min after
// the reported page load. Requests without a timestamp pass unless
// requireTimestamp is set. A timestamp in the future counts as too fast.
func InteractionTiming(min time.Duration, requireTimestamp bool) Predicate {
	return PredicateFunc{name: "interaction_timing", fn: func(in ports.VerifyInput, now time.Time) (domain.Verdict, bool) {
		if in.ClientTimestamp.IsZero() {
			if requireTimestamp {
				return domain.Verdict{Outcome: domain.OutcomeAutomated, Reason: domain.ReasonTooFast}, true
			}
			return domain.Verdict{}, false
		}
		if now.Sub(in.ClientTimestamp) < min {
			return domain.Verdict{Outcome: domain.OutcomeAutomated, Reason: domain.ReasonTooFast}, true
		}
		return domain.Verdict{}, false
	}}
}

// IdentifierSyntax requires a local@domain.tld shape.
func IdentifierSyntax() Predicate {
	return PredicateFunc{name: "identifier_syntax", fn: func(in ports.VerifyInput, _ time.Time) (domain.Verdict, bool) {
		if !identifierShape.MatchString(strings.TrimSpace(in.Identifier)) {
			return domain.Verdict{Outcome: domain.OutcomeInvalidInput, Reason: domain.ReasonIdentifierSyntax}, true
		}
		return domain.Verdict{}, false
	}}
}

// ClassifierConfig holds the heuristic policy knobs.
type ClassifierConfig struct {
	BlockedIPs          []string
	BlockedRegions      []string
	UserAgentTokens     []string
	BlockEmptyUserAgent bool
	MinInteraction      time.Duration
	RequireTimestamp    bool
}

// Classifier evaluates predicates in order and stops at the first that fires.
type Classifier struct {
	chain []Predicate
	now   func() time.Time
}

// NewClassifier builds the chain in its fixed, cost-ascending order:
// honeypot, origin, user agent, timing, identifier syntax. Blocked-IP entries
// that fail to parse are returned alongside.
func NewClassifier(cfg ClassifierConfig) (*Classifier, []string) {
	tokens := cfg.UserAgentTokens
	if tokens == nil {
		tokens = DefaultUserAgentTokens
	}
	min := cfg.MinInteraction
	if min <= 0 {
		min = DefaultMinInteraction
	}
	origin, rejected := OriginPolicy(cfg.BlockedIPs, cfg.BlockedRegions)
	return NewClassifierWithChain(
		Honeypot(),
		origin,
		UserAgent(tokens, cfg.BlockEmptyUserAgent),
		InteractionTiming(min, cfg.RequireTimestamp),
		IdentifierSyntax(),
	), rejected
}

// NewClassifierWithChain builds a classifier from an explicit chain.
func NewClassifierWithChain(chain ...Predicate) *Classifier {
	return &Classifier{chain: chain, now: time.Now}
}

// Classify runs the chain against in.
func (c *Classifier) Classify(in ports.VerifyInput) domain.Verdict {
	now := c.now()
	for _, p := range c.chain {
		if v, fired := p.Check(in, now); fired {
			return v
		}
	}
	return domain.Verdict{Outcome: domain.OutcomePass}
}

// Names lists the predicates in evaluation order.
func (c *Classifier) Names() []string {
	names := make([]string, len(c.chain))
	for i, p := range c.chain {
		names[i] = p.Name()
	}
	return names
}
