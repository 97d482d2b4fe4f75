package templates

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sapphireYAML = `name: Sapphire Reserve
issuer: Chase
network: visa
annual_fee: 795
version_id: csr_2025_v2
benefits:
  credits:
    - name: Travel Credit
      amount: 300
      frequency: annual
      reset_type: cardiversary
    - name: DoorDash Credit
      amount: 25
      frequency: monthly
  spend_thresholds:
    - name: Free Night
      spend_required: 15000
      frequency: annual
      description: Spend 15k for a free night
  bonus_categories:
    - category: dining
      multiplier: 3x
    - category: travel portal
      multiplier: 10x
      portal_only: true
      cap: 500
`

const sapphireOldYAML = `name: Sapphire Reserve
issuer: Chase
annual_fee: 550
version_id: csr_2021_v1
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cardDir := filepath.Join(dir, "chase", "sapphire_reserve")
	require.NoError(t, os.MkdirAll(filepath.Join(cardDir, "old"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cardDir, "card.yaml"), []byte(sapphireYAML), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(cardDir, "old", "card_csr_2021_v1.yaml"), []byte(sapphireOldYAML), 0o644))
	return dir
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCatalog_LoadsTemplates(t *testing.T) {
	catalog, err := New(writeCatalog(t), testLogger())
	require.NoError(t, err)

	tmpl, ok := catalog.Resolve("chase/sapphire_reserve")
	require.True(t, ok)

	assert.Equal(t, "Sapphire Reserve", tmpl.Name)
	assert.Equal(t, "csr_2025_v2", tmpl.VersionID)
	require.NotNil(t, tmpl.AnnualFee)
	assert.Equal(t, 795, *tmpl.AnnualFee)

	require.Len(t, tmpl.Credits, 2)
	assert.Equal(t, "cardiversary", tmpl.Credits[0].ResetType)
	// reset_type по умолчанию для кредитов — calendar.
	assert.Equal(t, "calendar", tmpl.Credits[1].ResetType)

	require.Len(t, tmpl.SpendThresholds, 1)
	// reset_type по умолчанию для порогов — cardiversary.
	assert.Equal(t, "cardiversary", tmpl.SpendThresholds[0].ResetType)

	require.Len(t, tmpl.BonusCategories, 2)
	assert.True(t, tmpl.BonusCategories[1].PortalOnly)
	require.NotNil(t, tmpl.BonusCategories[1].Cap)
	assert.Equal(t, 500, *tmpl.BonusCategories[1].Cap)
}

func TestCatalog_VersionHistory(t *testing.T) {
	catalog, err := New(writeCatalog(t), testLogger())
	require.NoError(t, err)

	history := catalog.VersionHistory("chase/sapphire_reserve")
	require.Len(t, history, 2)

	assert.Equal(t, "csr_2025_v2", history[0].VersionID)
	assert.True(t, history[0].IsCurrent)
	assert.Equal(t, "csr_2021_v1", history[1].VersionID)
	assert.False(t, history[1].IsCurrent)
	require.NotNil(t, history[1].AnnualFee)
	assert.Equal(t, 550, *history[1].AnnualFee)
}

func TestCatalog_ResolveUnknownTemplate(t *testing.T) {
	catalog, err := New(writeCatalog(t), testLogger())
	require.NoError(t, err)

	_, ok := catalog.Resolve("amex/platinum")
	assert.False(t, ok)
}

func TestCatalog_MalformedTemplateIsSkipped(t *testing.T) {
	dir := writeCatalog(t)
	badDir := filepath.Join(dir, "amex", "platinum")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "card.yaml"), []byte("{broken yaml"), 0o644))

	catalog, err := New(dir, testLogger())
	require.NoError(t, err)

	_, ok := catalog.Resolve("amex/platinum")
	assert.False(t, ok)
	_, ok = catalog.Resolve("chase/sapphire_reserve")
	assert.True(t, ok)
}

func TestCatalog_MissingDirectoryIsEmpty(t *testing.T) {
	catalog, err := New(filepath.Join(t.TempDir(), "nope"), testLogger())
	require.NoError(t, err)
	assert.Empty(t, catalog.All())
}

func TestCatalog_ReloadIfChanged(t *testing.T) {
	dir := writeCatalog(t)
	catalog, err := New(dir, testLogger())
	require.NoError(t, err)

	reloaded, err := catalog.ReloadIfChanged()
	require.NoError(t, err)
	assert.False(t, reloaded, "unchanged directory must not reload")

	// Меняем шаблон: и mtime, и содержимое.
	cardYAML := filepath.Join(dir, "chase", "sapphire_reserve", "card.yaml")
	updated := sapphireYAML + "notes: updated\n"
	require.NoError(t, os.WriteFile(cardYAML, []byte(updated), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(cardYAML, future, future))

	reloaded, err = catalog.ReloadIfChanged()
	require.NoError(t, err)
	assert.True(t, reloaded)

	tmpl, ok := catalog.Resolve("chase/sapphire_reserve")
	require.True(t, ok)
	assert.Equal(t, "updated", tmpl.Notes)
}
