package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryBody struct {
	Query   string `json:"query" validate:"required,max=10"`
	Quality string `json:"quality,omitempty" validate:"omitempty,oneof=low medium high"`
	Plain   int    `validate:"min=1"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name       string
		body       queryBody
		wantFields map[string]string
	}{
		{
			name: "valid",
			body: queryBody{Query: "orders?", Quality: "high", Plain: 1},
		},
		{
			name: "missing query uses json name",
			body: queryBody{Plain: 1},
			wantFields: map[string]string{
				"query": "query is required",
			},
		},
		{
			name: "length and enum",
			body: queryBody{Query: strings.Repeat("x", 11), Quality: "ultra", Plain: 1},
			wantFields: map[string]string{
				"query":   "query must be at most 10",
				"quality": "quality must be one of: low medium high",
			},
		},
		{
			name: "untagged field keeps its Go name",
			body: queryBody{Query: "q"},
			wantFields: map[string]string{
				"Plain": "Plain must be at least 1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.body)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, "Validation failed", err.Error())
			assert.Equal(t, tt.wantFields, GetValidationFields(err))
		})
	}
}

func TestValidateStruct_NotAStruct(t *testing.T) {
	err := ValidateStruct("plain string")
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestGetValidationFields_OtherError(t *testing.T) {
	assert.Nil(t, GetValidationFields(errors.New("boom")))
	assert.False(t, IsValidationError(errors.New("boom")))
}
