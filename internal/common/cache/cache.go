// internal/common/cache/cache.go
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"caserank/internal/models"
)

// Entry is a cached scoring result for a single case.
type Entry struct {
	CaseID  string   `json:"caseId"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// ScoreCache stores scoring results keyed by request content. Implementations
// must be safe for concurrent use. A miss is (nil, nil); errors are reserved
// for backend failures.
type ScoreCache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
}

// Key derives a deterministic cache key from the inputs that influence a
// case's score. Two requests producing byte-identical scoring context hash
// to the same key.
func Key(clin *models.Clinician, cf *models.CaseFeatures) string {
	var b strings.Builder
	b.WriteString(clin.ProviderID)
	b.WriteByte('|')
	b.WriteString(string(clin.Discipline))
	b.WriteByte('|')
	b.WriteString(clin.Subspecialty)
	b.WriteByte('|')
	b.WriteString(strings.Join(clin.Specialties, ","))
	b.WriteByte('|')
	b.WriteString(cf.CaseID)
	b.WriteByte('|')
	b.WriteString(cf.Status)
	b.WriteByte('|')
	b.WriteString(strings.Join(cf.Conditions, ","))
	b.WriteByte('|')
	b.WriteString(cf.PrevProviderID)
	b.WriteByte('|')
	b.WriteString(formatDistance(cf.PrimaryDistance))

	sum := sha256.Sum256([]byte(b.String()))
	return "score:" + hex.EncodeToString(sum[:])
}

func formatDistance(d *float64) string {
	if d == nil {
		return "none"
	}
	return fmt.Sprintf("%.2f", *d)
}
