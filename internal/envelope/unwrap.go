package envelope

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/constants"
	"github.com/Shugur-Network/dmsync/internal/domain"
	"github.com/Shugur-Network/dmsync/internal/errors"
	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/metrics"
	"github.com/Shugur-Network/dmsync/internal/models"
	"github.com/Shugur-Network/dmsync/internal/workers"
)

// Kind tells how an envelope has to be opened.
type Kind int

const (
	KindUnsupported Kind = iota
	// KindLegacy is a single NIP-04 encryption layer over a signed event.
	KindLegacy
	// KindGiftWrapped is a NIP-59 wrap around a seal around a rumor.
	KindGiftWrapped
)

func (k Kind) String() string {
	switch k {
	case KindLegacy:
		return "legacy"
	case KindGiftWrapped:
		return "gift_wrapped"
	}
	return "unsupported"
}

func (k Kind) protocol() string {
	switch k {
	case KindLegacy:
		return string(models.ProtocolNIP04)
	case KindGiftWrapped:
		return string(models.ProtocolNIP17)
	}
	return "unsupported"
}

// Envelope is a raw event tagged with how to open it.
type Envelope struct {
	Kind  Kind
	Event nostr.Event
}

// Classify tags evt by its event kind.
func Classify(evt nostr.Event) Envelope {
	switch evt.Kind {
	case constants.KindEncryptedDM:
		return Envelope{Kind: KindLegacy, Event: evt}
	case constants.KindGiftWrap:
		return Envelope{Kind: KindGiftWrapped, Event: evt}
	}
	return Envelope{Kind: KindUnsupported, Event: evt}
}

// Unwrapped is a decrypted message with its routing recovered.
type Unwrapped struct {
	// ID is the id of the innermost event.
	ID string
	// WrapperID is the id of the gift wrap, empty for legacy messages.
	WrapperID string
	Protocol  models.Protocol
	// Inner is the signed legacy event or the unsigned rumor.
	Inner   nostr.Event
	Content string
	Sender  string
	// Participants holds the sender and every tagged recipient.
	Participants []string
	Subject      string
	CreatedAt    nostr.Timestamp
}

// Stats counts the outcome of a batch unwrap.
type Stats struct {
	Total     int
	Unwrapped int
	Failed    int
}

var (
	errUnsupportedKind = stderrors.New("unsupported envelope kind")
	errBadSignature    = stderrors.New("invalid signature")
	errNoCounterparty  = stderrors.New("no counterparty tag")
	errAuthorMismatch  = stderrors.New("rumor author differs from seal author")
	errRumorID         = stderrors.New("rumor id does not match its content")
)

// Unwrapper opens envelopes addressed to or sent by one identity.
type Unwrapper struct {
	me   string
	dec  domain.Decrypter
	pool *workers.WorkerPool
}

// NewUnwrapper creates an unwrapper for the identity me. A nil pool unwraps
// sequentially.
func NewUnwrapper(me string, dec domain.Decrypter, pool *workers.WorkerPool) *Unwrapper {
	return &Unwrapper{me: me, dec: dec, pool: pool}
}

// Unwrap opens a single envelope.
func (u *Unwrapper) Unwrap(ctx context.Context, evt nostr.Event) (Unwrapped, error) {
	env := Classify(evt)
	switch env.Kind {
	case KindLegacy:
		return u.openLegacy(ctx, env.Event)
	case KindGiftWrapped:
		return u.openGiftWrap(ctx, env.Event)
	}
	return Unwrapped{}, errors.DecryptError(evt.ID, "envelope", fmt.Errorf("%w: %d", errUnsupportedKind, evt.Kind))
}

func verify(evt *nostr.Event) error {
	ok, err := evt.CheckSignature()
	if err != nil {
		return err
	}
	if !ok {
		return errBadSignature
	}
	return nil
}

func (u *Unwrapper) openLegacy(ctx context.Context, evt nostr.Event) (Unwrapped, error) {
	if err := ValidateLegacyDM(&evt); err != nil {
		return Unwrapped{}, errors.DecryptError(evt.ID, "legacy", err)
	}
	if err := verify(&evt); err != nil {
		return Unwrapped{}, errors.DecryptError(evt.ID, "legacy", err)
	}

	recipients := tagValues(evt.Tags, constants.TagP)
	counterparty := evt.PubKey
	if evt.PubKey == u.me {
		if len(recipients) == 0 {
			return Unwrapped{}, errors.DecryptError(evt.ID, "legacy", errNoCounterparty)
		}
		counterparty = recipients[0]
	}

	plaintext, err := u.dec.DecryptNIP04(ctx, counterparty, evt.Content)
	if err != nil {
		return Unwrapped{}, errors.DecryptError(evt.ID, "legacy", err)
	}

	return Unwrapped{
		ID:           evt.ID,
		Protocol:     models.ProtocolNIP04,
		Inner:        evt,
		Content:      plaintext,
		Sender:       evt.PubKey,
		Participants: participantSet(evt.PubKey, recipients),
		Subject:      tagValue(evt.Tags, constants.TagSubject),
		CreatedAt:    evt.CreatedAt,
	}, nil
}

func (u *Unwrapper) openGiftWrap(ctx context.Context, wrap nostr.Event) (Unwrapped, error) {
	if err := ValidateGiftWrap(&wrap); err != nil {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "gift wrap", err)
	}
	if err := verify(&wrap); err != nil {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "gift wrap", err)
	}

	sealJSON, err := u.dec.DecryptNIP44(ctx, wrap.PubKey, wrap.Content)
	if err != nil {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "gift wrap", err)
	}
	var seal nostr.Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "seal", err)
	}
	if err := ValidateSeal(&seal); err != nil {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "seal", err)
	}
	if err := verify(&seal); err != nil {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "seal", err)
	}

	rumorJSON, err := u.dec.DecryptNIP44(ctx, seal.PubKey, seal.Content)
	if err != nil {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "seal", err)
	}
	var rumor nostr.Event
	if err := json.Unmarshal([]byte(rumorJSON), &rumor); err != nil {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "rumor", err)
	}
	if err := ValidateRumor(&rumor); err != nil {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "rumor", err)
	}
	if rumor.PubKey != seal.PubKey {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "rumor", errAuthorMismatch)
	}

	// The rumor is unsigned, so its claimed id is only a hint.
	id := rumor.GetID()
	if rumor.ID != "" && rumor.ID != id {
		return Unwrapped{}, errors.DecryptError(wrap.ID, "rumor", errRumorID)
	}
	rumor.ID = id

	return Unwrapped{
		ID:           id,
		WrapperID:    wrap.ID,
		Protocol:     models.ProtocolNIP17,
		Inner:        rumor,
		Content:      rumor.Content,
		Sender:       rumor.PubKey,
		Participants: participantSet(rumor.PubKey, tagValues(rumor.Tags, constants.TagP)),
		Subject:      tagValue(rumor.Tags, constants.TagSubject),
		CreatedAt:    rumor.CreatedAt,
	}, nil
}

// UnwrapAll opens envelopes on the worker pool. Envelopes that fail are
// dropped and counted; the rest keep their input order.
func (u *Unwrapper) UnwrapAll(ctx context.Context, envelopes []nostr.Event) ([]Unwrapped, Stats) {
	stats := Stats{Total: len(envelopes)}
	results := make([]Unwrapped, len(envelopes))
	oks := make([]bool, len(envelopes))

	var wg sync.WaitGroup
	for i := range envelopes {
		job := func() {
			defer wg.Done()
			res, err := u.Unwrap(ctx, envelopes[i])
			metrics.RecordUnwrap(Classify(envelopes[i]).Kind.protocol(), err == nil)
			if err != nil {
				return
			}
			results[i] = res
			oks[i] = true
		}
		wg.Add(1)
		if u.pool == nil {
			job()
			continue
		}
		err := u.pool.Submit(ctx, job)
		if stderrors.Is(err, workers.ErrStopped) {
			job()
			continue
		}
		if err != nil {
			wg.Done()
			break
		}
	}
	wg.Wait()

	out := make([]Unwrapped, 0, len(envelopes))
	for i, ok := range oks {
		if ok {
			out = append(out, results[i])
		}
	}
	stats.Unwrapped = len(out)
	stats.Failed = stats.Total - stats.Unwrapped

	if stats.Failed > 0 {
		logger.FromContext(ctx).Debug("dropped envelopes that could not be opened",
			zap.Int("failed", stats.Failed),
			zap.Int("total", stats.Total))
	}
	return out, stats
}

func tagValues(tags nostr.Tags, name string) []string {
	var out []string
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name && t[1] != "" {
			out = append(out, t[1])
		}
	}
	return out
}

func tagValue(tags nostr.Tags, name string) string {
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

func participantSet(sender string, recipients []string) []string {
	set := map[string]struct{}{sender: {}}
	for _, r := range recipients {
		set[r] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for pk := range set {
		out = append(out, pk)
	}
	sort.Strings(out)
	return out
}
