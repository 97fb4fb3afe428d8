package store

import (
	"encoding/json"

	"github.com/google/uuid"
)

type header struct {
	ID               string `json:"id"`
	DateModification string `json:"date_modification"`
}

func readHeader(raw json.RawMessage) (header, error) {
	var h header
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return h, ErrInvalidRecord
	}
	_ = json.Unmarshal(raw, &h)
	return h, nil
}

// validate checks that every record is a JSON object.
func validate(records []json.RawMessage) error {
	for _, r := range records {
		if _, err := readHeader(r); err != nil {
			return err
		}
	}
	return nil
}

// dedupe keeps one record per id at the position of its first occurrence,
// preferring the most recently modified copy. Records without id are kept.
func dedupe(records []json.RawMessage) ([]json.RawMessage, int) {
	out := make([]json.RawMessage, 0, len(records))
	index := make(map[string]int, len(records))
	modified := make(map[string]string, len(records))

	for _, r := range records {
		h, _ := readHeader(r)
		if h.ID == "" {
			out = append(out, r)
			continue
		}
		if i, seen := index[h.ID]; seen {
			if h.DateModification > modified[h.ID] {
				out[i] = r
				modified[h.ID] = h.DateModification
			}
			continue
		}
		index[h.ID] = len(out)
		modified[h.ID] = h.DateModification
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

// fixIDs gives a fresh uuid to every record without id.
func fixIDs(records []json.RawMessage) ([]json.RawMessage, int, error) {
	out := make([]json.RawMessage, len(records))
	fixed := 0
	for i, r := range records {
		h, err := readHeader(r)
		if err != nil {
			return nil, 0, err
		}
		if h.ID != "" {
			out[i] = r
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(r, &obj); err != nil {
			return nil, 0, err
		}
		id, _ := json.Marshal(uuid.NewString())
		obj["id"] = id
		b, err := json.Marshal(obj)
		if err != nil {
			return nil, 0, err
		}
		out[i] = b
		fixed++
	}
	return out, fixed, nil
}

func stat(table string, records []json.RawMessage) TableStat {
	s := TableStat{Table: table, Records: len(records)}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		h, _ := readHeader(r)
		if h.ID == "" {
			s.MissingIDs++
			continue
		}
		if _, dup := seen[h.ID]; dup {
			s.Duplicates++
		}
		seen[h.ID] = struct{}{}
	}
	return s
}
