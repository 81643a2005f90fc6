package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"billgen/backend/internal/domain"
	"billgen/backend/internal/store"
)

// ErrPersistence wraps any sequence-store failure. When it is returned no
// invoice number has been issued; callers must surface a retry to the user
// rather than fabricate a number locally, which would reopen the uniqueness
// hole the sequencer exists to close.
var ErrPersistence = errors.New("invoice sequence store unavailable")

// DefaultNumberFormat renders numbers like INV-20260108-0001. The sequence
// field widens past 9999 instead of wrapping.
const DefaultNumberFormat = "{prefix}-{date}-{sequence}"

// Sequencer allocates unique, strictly increasing invoice numbers per
// calendar day, persisted through a store.SequenceStore so restarts and
// concurrent terminals never reuse a number.
type Sequencer struct {
	seqs   store.SequenceStore
	prefix string
	format string
}

func NewSequencer(seqs store.SequenceStore, prefix string, format string) *Sequencer {
	if prefix == "" {
		prefix = "INV"
	}
	if format == "" {
		format = DefaultNumberFormat
	}
	return &Sequencer{seqs: seqs, prefix: prefix, format: format}
}

// NextInvoiceNumber atomically allocates the next sequence for the given
// date and formats it. The first call for a new date creates the counter row
// at 1; later calls increment it. When two callers race on creating the row
// for a fresh date, the store's unique date key rejects the loser, who then
// retries once as an increment. Any other failure comes back wrapped in
// ErrPersistence with no number issued.
func (s *Sequencer) NextInvoiceNumber(ctx context.Context, date time.Time) (string, error) {
	day := date.UTC().Format(domain.DateLayout)

	seq, err := s.seqs.IncrementInvoiceSequence(ctx, day)
	if errors.Is(err, store.ErrNotFound) {
		createErr := s.seqs.CreateInvoiceSequence(ctx, day)
		switch {
		case createErr == nil:
			seq, err = 1, nil
		case errors.Is(createErr, store.ErrConflict):
			// Lost the creation race; the row exists now.
			seq, err = s.seqs.IncrementInvoiceSequence(ctx, day)
		default:
			err = createErr
		}
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return s.formatNumber(day, seq), nil
}

func (s *Sequencer) formatNumber(day string, seq int) string {
	dateKey := strings.ReplaceAll(day, "-", "")
	replacer := strings.NewReplacer(
		"{prefix}", s.prefix,
		"{date}", dateKey,
		"{sequence}", fmt.Sprintf("%04d", seq),
	)
	return replacer.Replace(s.format)
}
