package processor

import (
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"data_digest/internal/domain"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func TestSummarize_TwoItemsOneUser(t *testing.T) {
	records := domain.Dataset{
		{"userId": json.Number("1"), "title": "abc"},
		{"userId": json.Number("1"), "title": "de"},
	}

	s := Summarize(records, fixedNow)

	assert.Equal(t, 2, s.TotalItems)
	assert.Equal(t, 1, s.UniqueUsers)
	assert.Equal(t, map[string]int{"1": 2}, s.ItemsByUser)
	assert.Equal(t, 2.5, s.AverageTitleLength)
	assert.Equal(t, "2024-03-09T14:05:07Z", s.ProcessedAt)
}

func TestSummarize_PostsSample(t *testing.T) {
	records := domain.Dataset{
		{"userId": json.Number("1"), "id": json.Number("1"), "title": "Test post 1", "body": "Body 1"},
		{"userId": json.Number("1"), "id": json.Number("2"), "title": "Test post 2", "body": "Body 2"},
		{"userId": json.Number("2"), "id": json.Number("3"), "title": "Another post", "body": "Body 3"},
	}

	s := Summarize(records, fixedNow)

	assert.Equal(t, 3, s.TotalItems)
	assert.Equal(t, 2, s.UniqueUsers)
	assert.Equal(t, 2, s.ItemsByUser["1"])
	assert.Equal(t, 1, s.ItemsByUser["2"])
	assert.Equal(t, 11.33, s.AverageTitleLength)
}

func TestSummarize_Empty(t *testing.T) {
	for _, records := range []domain.Dataset{nil, {}} {
		s := Summarize(records, fixedNow)

		assert.Equal(t, 0, s.TotalItems)
		assert.Equal(t, 0, s.UniqueUsers)
		assert.Equal(t, 0.0, s.AverageTitleLength)
		assert.NotNil(t, s.ItemsByUser)
		assert.Empty(t, s.ItemsByUser)
	}
}

func TestSummarize_MissingTitle(t *testing.T) {
	records := domain.Dataset{
		{"userId": json.Number("1")},
		{"userId": json.Number("1"), "title": "abcd"},
		{"userId": json.Number("1"), "title": nil},
		{"userId": json.Number("1"), "title": json.Number("12345")},
	}

	s := Summarize(records, fixedNow)

	assert.Equal(t, 4, s.TotalItems)
	assert.Equal(t, 1.0, s.AverageTitleLength)
}

// Records without a user are grouped under "0", which also counts towards
// UniqueUsers.
func TestSummarize_MissingUserIsZero(t *testing.T) {
	records := domain.Dataset{
		{"title": "no user"},
		{"userId": nil, "title": "null user"},
		{"userId": json.Number("0"), "title": "user zero"},
		{"userId": json.Number("7"), "title": "user seven"},
	}

	s := Summarize(records, fixedNow)

	assert.Equal(t, map[string]int{"0": 3, "7": 1}, s.ItemsByUser)
	assert.Equal(t, 2, s.UniqueUsers)
}

func TestSummarize_UnicodeTitle(t *testing.T) {
	s := Summarize(domain.Dataset{{"title": "héllo"}, {"title": "日本"}}, fixedNow)
	assert.Equal(t, 3.5, s.AverageTitleLength)
}

func TestUserKey(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"json number", json.Number("42"), "42"},
		{"string", "alice", "alice"},
		{"float", float64(3), "3"},
		{"int", 5, "5"},
		{"int64", int64(9), "9"},
		{"bool", true, "true"},
		{"object", map[string]any{"id": "x"}, `{"id":"x"}`},
		{"null", nil, MissingUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserKey(domain.Record{UserField: tt.in}))
		})
	}

	assert.Equal(t, MissingUser, UserKey(domain.Record{}))
}

func TestSummarize_CountsAddUp(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(50)
		records := make(domain.Dataset, n)
		for j := range records {
			rec := domain.Record{"title": strings.Repeat("x", rng.Intn(20))}
			if rng.Intn(5) > 0 {
				rec["userId"] = json.Number(strconv.Itoa(rng.Intn(8)))
			}
			records[j] = rec
		}

		s := Summarize(records, fixedNow)

		sum := 0
		for _, c := range s.ItemsByUser {
			sum += c
		}
		assert.Equal(t, s.TotalItems, sum)
		assert.Equal(t, len(s.ItemsByUser), s.UniqueUsers)
		assert.Equal(t, s, Summarize(records, fixedNow), "deterministic")
	}
}
