package facematch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind tells which payload variant the backend answered with.
type Kind int

const (
	KindError Kind = iota
	KindRecordList
	KindMatchList
	KindSingleRecord
)

func (k Kind) String() string {
	switch k {
	case KindRecordList:
		return "records"
	case KindMatchList:
		return "matches"
	case KindSingleRecord:
		return "record"
	default:
		return "error"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Person is the metadata the backend stores for a lost, found or live feed face.
type Person struct {
	FaceID           string  `json:"face_id"`
	Name             string  `json:"name,omitempty"`
	Gender           string  `json:"gender,omitempty"`
	Age              int     `json:"age,omitempty"`
	WhereLost        string  `json:"where_lost,omitempty"`
	WhereFound       string  `json:"where_found,omitempty"`
	Location         string  `json:"location,omitempty"`
	CameraID         string  `json:"camera_id,omitempty"`
	YourName         string  `json:"your_name,omitempty"`
	RelationWithLost string  `json:"relation_with_lost,omitempty"`
	Organization     string  `json:"organization,omitempty"`
	Designation      string  `json:"designation,omitempty"`
	UserID           string  `json:"user_id,omitempty"`
	MobileNo         string  `json:"mobile_no,omitempty"`
	EmailID          string  `json:"email_id,omitempty"`
	FaceBlob         string  `json:"face_blob,omitempty"`
	FacePath         string  `json:"face_path,omitempty"`
	Emotion          string  `json:"emotion,omitempty"`
	MatchConfidence  float64 `json:"match_confidence,omitempty"`
}

// Record is the canonical item every response variant is normalized to.
type Record struct {
	Person Person `json:"person"`
	// Folder is set for stored records ("db/lost", "db/found", "db/live_feed").
	Folder string `json:"folder,omitempty"`
	// MatchID and Source are set when the record is a match.
	MatchID string  `json:"match_id,omitempty"`
	Source  *Person `json:"source,omitempty"`
	// FacePath of the match snapshot, or of the stored face.
	FacePath string `json:"face_path,omitempty"`
}

// Response is the normalized backend answer.
type Response struct {
	Kind    Kind     `json:"kind"`
	Message string   `json:"message,omitempty"`
	FaceID  string   `json:"face_id,omitempty"`
	Records []Record `json:"records"`
	Error   string   `json:"error,omitempty"`
}

type rawPerson struct {
	Person
	Age flexInt `json:"age"`
}

func (p rawPerson) person() Person {
	out := p.Person
	out.Age = int(p.Age)
	return out
}

type rawStored struct {
	Folder   string    `json:"folder"`
	Metadata rawPerson `json:"metadata"`
}

type rawMatch struct {
	MatchID     string     `json:"match_id"`
	Source      *rawPerson `json:"source"`
	MatchedWith rawPerson  `json:"matched_with"`
	FacePath    string     `json:"face_path"`
}

type envelope struct {
	Message        string          `json:"message"`
	FaceID         string          `json:"face_id"`
	Records        []rawStored     `json:"records"`
	MatchedRecords []rawMatch      `json:"matched_records"`
	Matches        []rawMatch      `json:"matches"`
	Record         *rawStored      `json:"record"`
	Error          string          `json:"error"`
	Detail         json.RawMessage `json:"detail"`
}

// Normalize decodes any of the backend's response shapes into a Response.
func Normalize(body []byte) (Response, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}

	res := Response{
		Message: env.Message,
		FaceID:  env.FaceID,
		Records: []Record{},
	}

	switch {
	case env.Error != "" || hasDetail(env.Detail):
		res.Kind = KindError
		res.Error = env.Error
		if res.Error == "" {
			res.Error = detailMessage(env.Detail)
		}
	case env.MatchedRecords != nil || env.Matches != nil:
		res.Kind = KindMatchList
		for _, m := range append(env.MatchedRecords, env.Matches...) {
			res.Records = append(res.Records, m.record())
		}
	case env.Record != nil:
		res.Kind = KindSingleRecord
		res.Records = append(res.Records, env.Record.record())
	case env.Records != nil:
		res.Kind = KindRecordList
		for _, r := range env.Records {
			res.Records = append(res.Records, r.record())
		}
	default:
		res.Kind = KindRecordList
	}
	return res, nil
}

func (r rawStored) record() Record {
	p := r.Metadata.person()
	return Record{Person: p, Folder: r.Folder, FacePath: p.FacePath}
}

func (m rawMatch) record() Record {
	rec := Record{
		Person:   m.MatchedWith.person(),
		MatchID:  m.MatchID,
		FacePath: m.FacePath,
	}
	if m.Source != nil {
		src := m.Source.person()
		rec.Source = &src
	}
	return rec
}

func hasDetail(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// detailMessage flattens a FastAPI style "detail", which is either a string or
// a list of validation errors.
func detailMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		var buf bytes.Buffer
		for i, it := range items {
			if i > 0 {
				buf.WriteString("; ")
			}
			if len(it.Loc) > 0 {
				fmt.Fprintf(&buf, "%v: ", it.Loc[len(it.Loc)-1])
			}
			buf.WriteString(it.Msg)
		}
		return buf.String()
	}
	return string(raw)
}

// flexInt accepts ages stored either as numbers or as strings.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = flexInt(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("age: %w", err)
	}
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("age %q: %w", s, err)
	}
	*n = flexInt(v)
	return nil
}
