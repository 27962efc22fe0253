package pii

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// TokenMode selects how token ids are generated.
type TokenMode string

const (
	// TokenModeRandom uses the first TokenLength hex chars of a random
	// 128-bit value.
	TokenModeRandom TokenMode = "random"
	// TokenModeSequential uses a per-context counter starting at 1.
	TokenModeSequential TokenMode = "sequential"
)

// DefaultTokenLength is the id length in random mode.
const DefaultTokenLength = 6

// tokenRe recognizes both hex (random) and decimal (sequential) token ids.
var tokenRe = regexp.MustCompile(`\[([A-Z_]+)_TOKEN_([0-9a-f]+)\]`)

// Redactor replaces matches with tokens and records the reverse mapping in
// the request's context.
type Redactor struct {
	mode        TokenMode
	tokenLength int
}

// NewRedactor creates a redactor. A zero tokenLength falls back to the
// default; unrecognized modes fall back to random.
func NewRedactor(mode TokenMode, tokenLength int) *Redactor {
	if mode != TokenModeSequential {
		mode = TokenModeRandom
	}
	if tokenLength <= 0 {
		tokenLength = DefaultTokenLength
	}
	return &Redactor{mode: mode, tokenLength: tokenLength}
}

// Redact substitutes each match with a fresh token, working from the last
// match backwards so earlier offsets stay valid, and binds every
// token/original pair into ctx.
func (r *Redactor) Redact(ctx *Context, text string, matches []Match) string {
	if len(matches) == 0 {
		return text
	}
	ordered := make([]Match, len(matches))
	copy(ordered, matches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	out := text
	for _, m := range ordered {
		token := r.newToken(ctx, m.Kind)
		out = out[:m.Start] + token + out[m.End:]
		ctx.bind(token, m.Value, Record{
			Kind:           m.Kind,
			Token:          token,
			OriginalLength: len(m.Value),
			Start:          m.Start,
			End:            m.End,
		})
	}
	return out
}

func (r *Redactor) newToken(ctx *Context, kind string) string {
	var id string
	switch r.mode {
	case TokenModeSequential:
		id = fmt.Sprintf("%d", ctx.nextSequence())
	default:
		hex := strings.ReplaceAll(uuid.NewString(), "-", "")
		n := r.tokenLength
		if n > len(hex) {
			n = len(hex)
		}
		id = hex[:n]
	}
	return fmt.Sprintf("[%s_TOKEN_%s]", kind, id)
}

// Restorer substitutes tokens in model output back to their original values.
type Restorer struct{}

// NewRestorer creates a restorer.
func NewRestorer() *Restorer {
	return &Restorer{}
}

// Restore replaces every known token in text with its original value,
// working from the last token backwards. Tokens absent from ctx, such as
// ones fabricated by the model, are left verbatim. Restoring already
// restored text is a no-op.
func (*Restorer) Restore(ctx *Context, text string) string {
	locs := tokenRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	out := text
	for i := len(locs) - 1; i >= 0; i-- {
		token := out[locs[i][0]:locs[i][1]]
		original, ok := ctx.Lookup(token)
		if !ok {
			continue
		}
		out = out[:locs[i][0]] + original + out[locs[i][1]:]
	}
	return out
}
