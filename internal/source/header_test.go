package source

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

func TestExtractHeader(t *testing.T) {
	content := `/*---
system: F-DD_00001
job: load_customers
dialect: hive
ephemeral_policy: intersect
metadata: [dw, ods]
---*/

INSERT INTO dw.customers SELECT id FROM ods.customers;`

	result, err := ExtractHeader(content)
	require.NoError(t, err)

	assert.True(t, result.HasHeader)
	assert.Equal(t, "F-DD_00001", result.Header.System)
	assert.Equal(t, "load_customers", result.Header.Job)
	assert.Equal(t, "hive", result.Header.Dialect)
	assert.Equal(t, "intersect", result.Header.EphemeralPolicy)
	assert.Equal(t, []string{"dw", "ods"}, result.Header.Metadata)
	assert.Equal(t, "INSERT INTO dw.customers SELECT id FROM ods.customers;", result.SQL)
}

func TestExtractHeader_None(t *testing.T) {
	content := "/* plain comment */\nSELECT 1;"
	result, err := ExtractHeader(content)
	require.NoError(t, err)
	assert.False(t, result.HasHeader)
	assert.Equal(t, content, result.SQL)
	assert.Equal(t, &Header{}, result.Header)
}

func TestExtractHeader_Skip(t *testing.T) {
	result, err := ExtractHeader("/*---\nskip: true\n---*/\nSELECT 1;")
	require.NoError(t, err)
	assert.True(t, result.Header.Skip)
}

func TestExtractHeader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		unknown bool
	}{
		{name: "unknown field", content: "/*---\nowner: finance\n---*/\nSELECT 1;", unknown: true},
		{name: "invalid yaml", content: "/*---\nsystem: [unclosed\n---*/\nSELECT 1;"},
		{name: "bad policy", content: "/*---\nephemeral_policy: sometimes\n---*/\nSELECT 1;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractHeader(tt.content)
			require.Error(t, err)

			var unknownErr *UnknownFieldError
			var parseErr *HeaderParseError
			if tt.unknown {
				assert.True(t, errors.As(err, &unknownErr))
			} else {
				assert.True(t, errors.As(err, &parseErr))
			}
		})
	}
}

func TestHeaderApply(t *testing.T) {
	base := core.JobInfo{System: "dir_sys", Job: "file.sql", AppName: "dir", Path: "/x/dir_sys/file.sql"}

	tests := []struct {
		name   string
		header *Header
		want   core.JobInfo
	}{
		{name: "nil header", header: nil, want: base},
		{name: "empty header", header: &Header{}, want: base},
		{
			name:   "system derives app name",
			header: &Header{System: "CRM_core"},
			want:   core.JobInfo{System: "CRM_core", Job: "file.sql", AppName: "CRM", Path: base.Path},
		},
		{
			name:   "explicit app name and job",
			header: &Header{System: "CRM_core", AppName: "crm-app", Job: "nightly"},
			want:   core.JobInfo{System: "CRM_core", Job: "nightly", AppName: "crm-app", Path: base.Path},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.header.Apply(base))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "a.sql: bad", (&HeaderParseError{File: "a.sql", Message: "bad"}).Error())
	assert.Equal(t, "bad", (&HeaderParseError{Message: "bad"}).Error())
	assert.Equal(t, `a.sql: unknown field "x" in script header`, (&UnknownFieldError{File: "a.sql", Field: "x"}).Error())
}
