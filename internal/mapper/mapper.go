// Package mapper projects raw provider records onto the canonical contact fields.
package mapper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
)

// Candidate is a record that passed the email check, ready to upsert.
type Candidate struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Raw       map[string]any
}

// Project extracts the mapped fields from record.
// ok is false when the email is missing, empty or lacks an "@".
func Project(record map[string]any, mapping models.FieldMapping) (Candidate, bool) {
	email := models.NormalizeEmail(lookup(record, mapping.Email))
	if email == "" || !strings.Contains(email, "@") {
		return Candidate{}, false
	}

	return Candidate{
		Email:     email,
		FirstName: strings.TrimSpace(lookup(record, mapping.FirstName)),
		LastName:  strings.TrimSpace(lookup(record, mapping.LastName)),
		Phone:     strings.TrimSpace(lookup(record, mapping.Phone)),
		Raw:       record,
	}, true
}

// lookup returns the stringified value under key. An exact key match wins;
// otherwise keys are compared case-insensitively after trimming.
func lookup(record map[string]any, key string) string {
	if key == "" {
		return ""
	}
	if v, ok := record[key]; ok {
		return Stringify(v)
	}

	want := strings.ToLower(strings.TrimSpace(key))
	for k, v := range record {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return Stringify(v)
		}
	}
	return ""
}

// Stringify renders scalar provider values as text. Lists use their first element.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339)
	case []any:
		if len(val) == 0 {
			return ""
		}
		return Stringify(val[0])
	default:
		return fmt.Sprint(val)
	}
}
