package extractor

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		field       string
		wantValue   string
		wantOutcome Outcome
	}{
		{
			name:        "string field present",
			payload:     `{"userId":"u1"}`,
			field:       "userId",
			wantValue:   "u1",
			wantOutcome: Found,
		},
		{
			name:        "field absent",
			payload:     `{"other":"x"}`,
			field:       "userId",
			wantOutcome: FieldMissing,
		},
		{
			name:        "payload not json",
			payload:     `not-json`,
			field:       "userId",
			wantOutcome: Unparseable,
		},
		{
			name:        "number coerced to text",
			payload:     `{"orderId":42}`,
			field:       "orderId",
			wantValue:   "42",
			wantOutcome: Found,
		},
		{
			name:        "boolean coerced to text",
			payload:     `{"active":true}`,
			field:       "active",
			wantValue:   "true",
			wantOutcome: Found,
		},
		{
			name:        "object coerced to canonical json",
			payload:     `{"meta":{"a":1}}`,
			field:       "meta",
			wantValue:   `{"a":1}`,
			wantOutcome: Found,
		},
		{
			name:        "null coerced to text",
			payload:     `{"ref":null}`,
			field:       "ref",
			wantValue:   "null",
			wantOutcome: Found,
		},
		{
			name:        "top-level array has no fields",
			payload:     `[1,2,3]`,
			field:       "userId",
			wantOutcome: FieldMissing,
		},
		{
			name:        "empty payload",
			payload:     ``,
			field:       "userId",
			wantOutcome: Unparseable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, outcome := Extract([]byte(tt.payload), tt.field)
			if outcome != tt.wantOutcome {
				t.Fatalf("expected outcome %v, got %v", tt.wantOutcome, outcome)
			}
			if outcome == Found && value != tt.wantValue {
				t.Errorf("expected value %q, got %q", tt.wantValue, value)
			}
		})
	}
}
