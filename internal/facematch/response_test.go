package facematch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		kind    Kind
		records int
		check   func(t *testing.T, res Response)
	}{
		{
			name: "records list",
			body: `{"message":"Records found","records":[
				{"folder":"db/lost","metadata":{"face_id":"a","name":"Asha","age":7,"face_path":"db/lost/a.jpg"}},
				{"folder":"db/found","metadata":{"face_id":"b","age":"12"}}]}`,
			kind:    KindRecordList,
			records: 2,
			check: func(t *testing.T, res Response) {
				assert.Equal(t, "Records found", res.Message)
				assert.Equal(t, "db/lost", res.Records[0].Folder)
				assert.Equal(t, "Asha", res.Records[0].Person.Name)
				assert.Equal(t, 7, res.Records[0].Person.Age)
				assert.Equal(t, "db/lost/a.jpg", res.Records[0].FacePath)
				assert.Equal(t, 12, res.Records[1].Person.Age)
			},
		},
		{
			name: "matched records from an upload",
			body: `{"message":"Lost person uploaded successfully.","face_id":"f1","matched_found_count":1,"matched_live_count":0,
				"matched_records":[{"match_id":"m1","source":{"face_id":"f1","name":"Asha"},
				"matched_with":{"face_id":"x","where_found":"Gate 3","match_confidence":0.31},"face_path":"db/matched/m1.jpg"}]}`,
			kind:    KindMatchList,
			records: 1,
			check: func(t *testing.T, res Response) {
				assert.Equal(t, "f1", res.FaceID)
				rec := res.Records[0]
				assert.Equal(t, "m1", rec.MatchID)
				assert.Equal(t, "Gate 3", rec.Person.WhereFound)
				assert.InDelta(t, 0.31, rec.Person.MatchConfidence, 1e-9)
				require.NotNil(t, rec.Source)
				assert.Equal(t, "Asha", rec.Source.Name)
				assert.Equal(t, "db/matched/m1.jpg", rec.FacePath)
			},
		},
		{
			name:    "live feed matches",
			body:    `{"message":"ok","matches":[{"match_id":"m2","matched_with":{"face_id":"y"}}]}`,
			kind:    KindMatchList,
			records: 1,
			check: func(t *testing.T, res Response) {
				assert.Nil(t, res.Records[0].Source)
			},
		},
		{
			name:    "empty match list",
			body:    `{"message":"Found person uploaded successfully.","face_id":"f2","matched_records":[]}`,
			kind:    KindMatchList,
			records: 0,
		},
		{
			name:    "single record",
			body:    `{"record":{"folder":"db/found","metadata":{"face_id":"z","gender":"F"}}}`,
			kind:    KindSingleRecord,
			records: 1,
			check: func(t *testing.T, res Response) {
				assert.Equal(t, "F", res.Records[0].Person.Gender)
			},
		},
		{
			name:    "error field",
			body:    `{"error":"No face detected"}`,
			kind:    KindError,
			records: 0,
			check: func(t *testing.T, res Response) {
				assert.Equal(t, "No face detected", res.Error)
			},
		},
		{
			name:    "string detail",
			body:    `{"detail":"Face ID not found"}`,
			kind:    KindError,
			records: 0,
			check: func(t *testing.T, res Response) {
				assert.Equal(t, "Face ID not found", res.Error)
			},
		},
		{
			name:    "validation detail",
			body:    `{"detail":[{"loc":["body","age"],"msg":"field required"},{"loc":["body","file"],"msg":"field required"}]}`,
			kind:    KindError,
			records: 0,
			check: func(t *testing.T, res Response) {
				assert.Equal(t, "age: field required; file: field required", res.Error)
			},
		},
		{
			name:    "null detail is not an error",
			body:    `{"message":"No records found","records":[],"detail":null}`,
			kind:    KindRecordList,
			records: 0,
		},
		{
			name:    "bare message",
			body:    `{"message":"nothing"}`,
			kind:    KindRecordList,
			records: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, res.Kind)
			require.NotNil(t, res.Records)
			require.Len(t, res.Records, tt.records)
			if tt.check != nil {
				tt.check(t, res)
			}
		})
	}
}

func TestNormalizeInvalid(t *testing.T) {
	_, err := Normalize([]byte(`<html>`))
	assert.Error(t, err)

	_, err = Normalize([]byte(`{"records":[{"metadata":{"age":"seven"}}]}`))
	assert.Error(t, err)
}

func TestKindMarshalText(t *testing.T) {
	for kind, want := range map[Kind]string{
		KindError:        "error",
		KindRecordList:   "records",
		KindMatchList:    "matches",
		KindSingleRecord: "record",
	} {
		b, err := kind.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, want, string(b))
	}
}
