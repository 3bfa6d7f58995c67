package proposal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PageDAO/DAO-Tools/internal/proposal"
)

func TestDecode_KeepsLargeAmountsExact(t *testing.T) {
	tree, err := proposal.Decode([]byte(`{"id": 7, "amount": 123456789012345678901234}`))
	require.NoError(t, err)

	assert.Equal(t, "7", tree.ID())
	n, ok := proposal.Amount(tree["amount"])
	require.True(t, ok)
	assert.Equal(t, "123456789012345678901234", n.String())
}

func TestDecode_RejectsNonObject(t *testing.T) {
	_, err := proposal.Decode([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
		ok    bool
	}{
		{name: "digit string", input: "5000000", want: "5000000", ok: true},
		{name: "zero retained", input: "0", want: "0", ok: true},
		{name: "float without fraction", input: float64(42), want: "42", ok: true},
		{name: "negative", input: "-5", ok: false},
		{name: "fraction", input: "1.5", ok: false},
		{name: "empty", input: "", ok: false},
		{name: "object", input: map[string]any{"a": 1}, ok: false},
		{name: "nil", input: nil, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := proposal.Amount(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, n.String())
			}
		})
	}
}

func TestTree_Messages(t *testing.T) {
	tests := []struct {
		name string
		tree proposal.Tree
		want int
	}{
		{
			name: "nested proposal msgs",
			tree: proposal.Tree{"proposal": map[string]any{"msgs": []any{1, 2}}},
			want: 2,
		},
		{
			name: "top-level messages",
			tree: proposal.Tree{"messages": []any{1}},
			want: 1,
		},
		{
			name: "actions",
			tree: proposal.Tree{"actions": []any{1, 2, 3}},
			want: 3,
		},
		{
			name: "msgs preferred over messages",
			tree: proposal.Tree{"msgs": []any{1}, "messages": []any{1, 2}},
			want: 1,
		},
		{
			name: "none",
			tree: proposal.Tree{"title": "x"},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.tree.Messages(), tt.want)
		})
	}
}

func TestTree_TitleAndText(t *testing.T) {
	tree := proposal.Tree{
		"id": "A12",
		"proposal": map[string]any{
			"title":       "Fund grants",
			"description": "Quarterly grants round",
		},
	}

	assert.Equal(t, "A12", tree.ID())
	assert.Equal(t, "Fund grants", tree.Title())
	assert.Equal(t, "Fund grants\nQuarterly grants round", tree.Text())
}

func TestTree_Date(t *testing.T) {
	ref := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		tree proposal.Tree
		want string
	}{
		{
			name: "created_at timestamp",
			tree: proposal.Tree{"created_at": "2024-05-06T10:11:12Z"},
			want: "2024-05-06",
		},
		{
			name: "submission_time date prefix",
			tree: proposal.Tree{"submission_time": "2024-02-03 08:00:00"},
			want: "2024-02-03",
		},
		{
			name: "metadata created_at",
			tree: proposal.Tree{"metadata": map[string]any{"created_at": "2023-12-31T23:00:00Z"}},
			want: "2023-12-31",
		},
		{
			name: "expiration minus seven days",
			tree: proposal.Tree{"proposal": map[string]any{
				"expiration": map[string]any{"at_time": "1704931200000000000"},
			}},
			want: "2024-01-04",
		},
		{
			name: "fallback to reference",
			tree: proposal.Tree{},
			want: "2025-03-04",
		},
		{
			name: "unparsable timestamp falls through",
			tree: proposal.Tree{"created_at": "yesterday"},
			want: "2025-03-04",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tree.Date(ref))
		})
	}
}
