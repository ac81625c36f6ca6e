package processor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"data_digest/internal/domain"
)

const (
	UserField  = "userId"
	TitleField = "title"

	// MissingUser is the key used for records without a user.
	MissingUser = "0"
)

// Summarize computes the summary statistics of records. It does no I/O and
// is deterministic for a given now.
func Summarize(records domain.Dataset, now time.Time) domain.Summary {
	summary := domain.Summary{
		TotalItems:  len(records),
		ProcessedAt: now.Format(time.RFC3339),
		ItemsByUser: make(map[string]int),
	}

	titleChars := 0
	for _, rec := range records {
		summary.ItemsByUser[UserKey(rec)]++
		titleChars += TitleLength(rec)
	}

	summary.UniqueUsers = len(summary.ItemsByUser)
	if summary.TotalItems > 0 {
		summary.AverageTitleLength = round2(float64(titleChars) / float64(summary.TotalItems))
	}

	return summary
}

// UserKey returns the string form of the record's user identifier.
// Records without one, or with a null one, count as user "0".
func UserKey(rec domain.Record) string {
	v, ok := rec[UserField]
	if !ok || v == nil {
		return MissingUser
	}

	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case bool:
		return strconv.FormatBool(id)
	default:
		b, err := json.Marshal(id)
		if err != nil {
			return fmt.Sprint(id)
		}
		return string(b)
	}
}

// TitleLength is the character count of a string title, 0 otherwise.
func TitleLength(rec domain.Record) int {
	title, ok := rec[TitleField].(string)
	if !ok {
		return 0
	}
	return utf8.RuneCountInString(title)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
