package feetimeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pereloman/cardperks/internal/models"
)

func fee(v int) *int { return &v }

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		versions []models.TemplateVersion
		want     Timeline
	}{
		{
			name: "versions with year tokens",
			versions: []models.TemplateVersion{
				{VersionID: "csr_2025_refresh", AnnualFee: fee(895)},
				{VersionID: "csr_2021_original", AnnualFee: fee(695)},
			},
			want: Timeline{2025: 895, 2021: 695},
		},
		{
			name: "version without year token is skipped",
			versions: []models.TemplateVersion{
				{VersionID: "legacy", AnnualFee: fee(450)},
				{VersionID: "plat_2023_update", AnnualFee: fee(695)},
			},
			want: Timeline{2023: 695},
		},
		{
			name: "version without fee is skipped",
			versions: []models.TemplateVersion{
				{VersionID: "gold_2022_v2", AnnualFee: nil},
				{VersionID: "gold_2024_v3", AnnualFee: fee(325)},
			},
			want: Timeline{2024: 325},
		},
		{
			name:     "empty history",
			versions: nil,
			want:     Timeline{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Build(tt.versions))
		})
	}
}

func TestFeeForYear(t *testing.T) {
	timeline := Timeline{2021: 695, 2025: 895}

	tests := []struct {
		name   string
		year   int
		want   int
		wantOK bool
	}{
		{"exact match", 2021, 695, true},
		{"between versions takes earlier", 2023, 695, true},
		{"at newer version", 2025, 895, true},
		{"after newest version", 2027, 895, true},
		{"before all versions falls back to earliest", 2019, 695, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := timeline.FeeForYear(tt.year)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeeForYear_EmptyTimeline(t *testing.T) {
	_, ok := Timeline{}.FeeForYear(2025)
	assert.False(t, ok)
}
