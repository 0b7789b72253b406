package feedback

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	jsoncanonicalizer "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/quailyquaily/kbrelay/kb"
)

const DefaultMaxEntries = 1000

// ErrContextMissing reports that a reply has no stored request, either
// because it was never recorded or because it was evicted.
var ErrContextMissing = errors.New("feedback context missing")

type Entry struct {
	Request         kb.Request
	SourceMessageID string
	ChannelID       string
	Fingerprint     string
	RecordedAt      time.Time
}

// Ledger maps a sent reply's message id to the request that produced it.
// It is bounded; the least recently used entries are evicted first.
// Safe for concurrent use.
type Ledger struct {
	cache *lru.Cache[string, Entry]
	nowFn func() time.Time
}

func NewLedger(maxEntries int) (*Ledger, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	cache, err := lru.New[string, Entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Ledger{cache: cache, nowFn: time.Now}, nil
}

func (l *Ledger) Record(replyMessageID string, entry Entry) {
	if l == nil || l.cache == nil {
		return
	}
	replyMessageID = strings.TrimSpace(replyMessageID)
	if replyMessageID == "" {
		return
	}
	if entry.Fingerprint == "" {
		entry.Fingerprint = Fingerprint(entry.Request)
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = l.nowFn().UTC()
	}
	l.cache.Add(replyMessageID, entry)
}

func (l *Ledger) Lookup(replyMessageID string) (Entry, error) {
	if l == nil || l.cache == nil {
		return Entry{}, ErrContextMissing
	}
	entry, ok := l.cache.Get(strings.TrimSpace(replyMessageID))
	if !ok {
		return Entry{}, ErrContextMissing
	}
	return entry, nil
}

func (l *Ledger) Len() int {
	if l == nil || l.cache == nil {
		return 0
	}
	return l.cache.Len()
}

// Fingerprint is a short digest of the RFC 8785 canonical form of req.
func Fingerprint(req kb.Request) string {
	raw, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:8])
}
