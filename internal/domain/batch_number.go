package domain

import (
	"fmt"
	"regexp"
	"time"
)

const (
	batchNumberPrefix = "PROD"
	// MaxDailySequence is the largest sequence a 3-digit suffix can carry
	MaxDailySequence = 999
)

var batchNumberPattern = regexp.MustCompile(`^PROD-\d{8}-\d{3}$`)

// GenerateBatchNumber formats PROD-YYYYMMDD-SSS for the given day and sequence
func GenerateBatchNumber(date time.Time, seq int) (string, error) {
	if seq < 1 || seq > MaxDailySequence {
		return "", NewValidationError(fmt.Sprintf("batch sequence %d out of range 1..%d for %s", seq, MaxDailySequence, SequenceKey(date)))
	}
	return fmt.Sprintf("%s-%s-%03d", batchNumberPrefix, SequenceKey(date), seq), nil
}

// IsValidBatchNumber reports whether s has the PROD-YYYYMMDD-SSS shape
func IsValidBatchNumber(s string) bool {
	return batchNumberPattern.MatchString(s)
}

// SequenceKey is the per-day counter key, YYYYMMDD in UTC
func SequenceKey(date time.Time) string {
	return date.UTC().Format("20060102")
}

// NormalizeProductionDate truncates t to midnight UTC
func NormalizeProductionDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
