package notice

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) *time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return &parsed
}

func TestDetectChanges(t *testing.T) {
	opening := mustTime(t, "2024-03-15T14:30:00-03:00")
	stored := &Notice{
		NoticeNumber: "90001/2024",
		Description:  "Reforma do prédio sede",
		Modality:     "Pregão Eletrônico",
		OpeningDate:  opening,
		DetailURL:    "https://comprasnet.gov.br/detalhe?id=1",
	}

	tests := []struct {
		name   string
		rec    NormalizedRecord
		fields []string
	}{
		{
			name: "identical candidate",
			rec: NormalizedRecord{
				NoticeNumber: "90001/2024",
				Description:  "Reforma do prédio sede",
				Modality:     "Pregão Eletrônico",
				OpeningDate:  opening,
				DetailURL:    "https://comprasnet.gov.br/detalhe?id=1",
			},
			fields: nil,
		},
		{
			name: "same instant in another zone",
			rec: NormalizedRecord{
				NoticeNumber: "90001/2024",
				OpeningDate:  mustTime(t, "2024-03-15T17:30:00Z"),
			},
			fields: nil,
		},
		{
			name: "opening date moved",
			rec: NormalizedRecord{
				NoticeNumber: "90001/2024",
				Description:  "Reforma do prédio sede",
				OpeningDate:  mustTime(t, "2024-03-20T09:00:00-03:00"),
			},
			fields: []string{FieldOpeningDate},
		},
		{
			name: "absent values never clear stored ones",
			rec: NormalizedRecord{
				NoticeNumber: "90001/2024",
			},
			fields: nil,
		},
		{
			name: "every field changed",
			rec: NormalizedRecord{
				NoticeNumber: "90001/2024",
				Description:  "Reforma e ampliação",
				Modality:     "Concorrência",
				OpeningDate:  mustTime(t, "2024-04-01T10:00:00-03:00"),
				DetailURL:    "https://comprasnet.gov.br/detalhe?id=2",
			},
			fields: []string{FieldDescription, FieldModality, FieldOpeningDate, FieldDetailURL},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := DetectChanges(stored, tt.rec)
			var got []string
			for _, c := range changes {
				got = append(got, c.Field)
			}
			if diff := cmp.Diff(tt.fields, got); diff != "" {
				t.Errorf("DetectChanges() fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDetectChanges_NilStoredDate(t *testing.T) {
	stored := &Notice{NoticeNumber: "1"}
	rec := NormalizedRecord{NoticeNumber: "1", OpeningDate: mustTime(t, "2024-03-15T14:30:00-03:00")}

	changes := DetectChanges(stored, rec)
	require.Len(t, changes, 1)
	assert.Equal(t, FieldOpeningDate, changes[0].Field)
	assert.Equal(t, "", changes[0].OldValue)
	assert.Equal(t, "2024-03-15T14:30:00-03:00", changes[0].NewValue)
}

func TestApplyChanges(t *testing.T) {
	stored := &Notice{
		NoticeNumber: "2",
		Description:  "Old",
		Modality:     "Pregão",
		Notes:        "manual note",
	}
	rec := NormalizedRecord{
		NoticeNumber: "2",
		Description:  "New",
		OpeningDate:  mustTime(t, "2024-05-01T08:00:00-03:00"),
	}

	changes := ApplyChanges(stored, rec)

	assert.Equal(t, "description, opening_date", ChangedFields(changes))
	assert.Equal(t, "New", stored.Description)
	assert.Equal(t, "Pregão", stored.Modality)
	assert.Equal(t, "manual note", stored.Notes)
	require.NotNil(t, stored.OpeningDate)
	assert.True(t, stored.OpeningDate.Equal(*rec.OpeningDate))

	// applying again is a no-op
	assert.Empty(t, ApplyChanges(stored, rec))
}

func TestFromRecord_RoundTrip(t *testing.T) {
	rec := NormalizedRecord{
		NoticeNumber: "3",
		Description:  "Aquisição de medicamentos",
		Organization: "Ministério da Saúde",
		OpeningDate:  mustTime(t, "2024-06-10T10:00:00-03:00"),
		Modality:     "Pregão",
		DetailURL:    "https://example.com/3",
		Source:       "ComprasNet",
	}

	stored := FromRecord(rec)
	assert.Empty(t, DetectChanges(stored, rec))
	assert.Equal(t, "ComprasNet", stored.Source)
}
