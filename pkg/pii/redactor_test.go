package pii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactRestoreRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		mode TokenMode
	}{
		{name: "random tokens", mode: TokenModeRandom},
		{name: "sequential tokens", mode: TokenModeSequential},
	}

	text := "Reach alice@example.com or +14155552671, card 4532-0151-1283-0366."

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(t, nil)
			ctx := NewContext("req-1")
			redactor := NewRedactor(tt.mode, DefaultTokenLength)

			detection := d.Detect(text)
			require.Len(t, detection.Matches, 3)

			redacted := redactor.Redact(ctx, text, detection.Matches)
			for _, m := range detection.Matches {
				assert.NotContains(t, redacted, m.Value)
			}
			assert.Len(t, tokenRe.FindAllString(redacted, -1), 3)
			assert.Equal(t, 3, ctx.DetectionCount())

			restored := NewRestorer().Restore(ctx, redacted)
			assert.Equal(t, text, restored)
		})
	}
}

func TestRedactNoMatchesReturnsInput(t *testing.T) {
	ctx := NewContext("req-1")
	redactor := NewRedactor(TokenModeRandom, DefaultTokenLength)
	assert.Equal(t, "nothing sensitive here", redactor.Redact(ctx, "nothing sensitive here", nil))
	assert.Zero(t, ctx.DetectionCount())
}

func TestSequentialTokensNumberFromRightmostMatch(t *testing.T) {
	d := newTestDetector(t, nil)
	ctx := NewContext("req-1")
	redactor := NewRedactor(TokenModeSequential, DefaultTokenLength)

	text := "a@b.co and c@d.co"
	detection := d.Detect(text)
	require.Len(t, detection.Matches, 2)

	// Substitution runs right to left, so the rightmost match takes id 1.
	redacted := redactor.Redact(ctx, text, detection.Matches)
	assert.Equal(t, "[EMAIL_TOKEN_2] and [EMAIL_TOKEN_1]", redacted)
}

func TestRandomTokenLength(t *testing.T) {
	d := newTestDetector(t, nil)
	ctx := NewContext("req-1")
	redactor := NewRedactor(TokenModeRandom, 8)

	redacted := redactor.Redact(ctx, "a@b.co", d.Detect("a@b.co").Matches)
	sub := tokenRe.FindStringSubmatch(redacted)
	require.Len(t, sub, 3)
	assert.Equal(t, "EMAIL", sub[1])
	assert.Len(t, sub[2], 8)
}

func TestRestoreLeavesUnknownTokensVerbatim(t *testing.T) {
	ctx := NewContext("req-1")
	text := "model invented [EMAIL_TOKEN_abc123] on its own"
	assert.Equal(t, text, NewRestorer().Restore(ctx, text))
}

func TestRestoreIdempotent(t *testing.T) {
	d := newTestDetector(t, nil)
	ctx := NewContext("req-1")
	redactor := NewRedactor(TokenModeRandom, DefaultTokenLength)

	text := "ping alice@example.com about the invoice"
	redacted := redactor.Redact(ctx, text, d.Detect(text).Matches)

	restorer := NewRestorer()
	once := restorer.Restore(ctx, redacted)
	twice := restorer.Restore(ctx, once)
	assert.Equal(t, text, once)
	assert.Equal(t, once, twice)
}

func TestRecordsCarryPositionsAndLengths(t *testing.T) {
	d := newTestDetector(t, nil)
	ctx := NewContext("req-1")
	redactor := NewRedactor(TokenModeRandom, DefaultTokenLength)

	text := "mail alice@example.com now"
	detection := d.Detect(text)
	require.Len(t, detection.Matches, 1)
	redactor.Redact(ctx, text, detection.Matches)

	records := ctx.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "EMAIL", rec.Kind)
	assert.Equal(t, len("alice@example.com"), rec.OriginalLength)
	assert.Equal(t, strings.Index(text, "alice"), rec.Start)
	assert.Equal(t, rec.Start+rec.OriginalLength, rec.End)
	assert.Regexp(t, `^\[EMAIL_TOKEN_[0-9a-f]+\]$`, rec.Token)
}

func TestRedactorFallsBackOnBadSettings(t *testing.T) {
	ctx := NewContext("req-1")
	redactor := NewRedactor(TokenMode("weird"), 0)

	d := newTestDetector(t, nil)
	redacted := redactor.Redact(ctx, "a@b.co", d.Detect("a@b.co").Matches)
	sub := tokenRe.FindStringSubmatch(redacted)
	require.Len(t, sub, 3)
	assert.Len(t, sub[2], DefaultTokenLength)
}
