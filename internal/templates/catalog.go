// Package templates загружает каталог шаблонов карточных продуктов
// из YAML-файлов на диске. Каталог разложен как <issuer>/<card>/card.yaml,
// старые версии лежат рядом в old/card_<version_id>.yaml.
//
// Загрузчик собирает неизменяемый снимок и устанавливает его атомарной
// заменой указателя; читатели всегда видят целостное состояние.
// Повторная загрузка происходит только при изменении отпечатка каталога.
package templates

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/pereloman/cardperks/internal/lib/sl"
	"github.com/pereloman/cardperks/internal/models"
)

var oldVersionFileRe = regexp.MustCompile(`^card_(.+)\.ya?ml$`)

// snapshot — неизменяемое состояние каталога.
type snapshot struct {
	templates   map[string]*models.Template
	histories   map[string][]models.TemplateVersion
	fingerprint string
}

// Catalog предоставляет доступ к снимку шаблонов, только на чтение.
type Catalog struct {
	dir  string
	log  *slog.Logger
	snap atomic.Pointer[snapshot]
}

// New создает каталог поверх директории с шаблонами и выполняет
// первоначальную загрузку.
func New(dir string, log *slog.Logger) (*Catalog, error) {
	c := &Catalog{dir: dir, log: log}
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load полностью перечитывает каталог и атомарно устанавливает новый
// снимок. Повреждённые шаблоны пропускаются с предупреждением.
func (c *Catalog) Load() error {
	const op = "templates.Load"

	snap := &snapshot{
		templates: map[string]*models.Template{},
		histories: map[string][]models.TemplateVersion{},
	}

	issuers, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			c.snap.Store(snap)
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, issuer := range issuers {
		if !issuer.IsDir() || strings.HasPrefix(issuer.Name(), ".") {
			continue
		}
		issuerDir := filepath.Join(c.dir, issuer.Name())
		cards, err := os.ReadDir(issuerDir)
		if err != nil {
			continue
		}
		for _, card := range cards {
			if !card.IsDir() || strings.HasPrefix(card.Name(), ".") {
				continue
			}
			templateID := issuer.Name() + "/" + card.Name()
			cardDir := filepath.Join(issuerDir, card.Name())
			tmpl, err := loadTemplate(cardDir, templateID, issuer.Name(), card.Name())
			if err != nil {
				c.log.Warn("skipping template", slog.String("template_id", templateID), sl.Err(err))
				continue
			}
			if tmpl == nil {
				continue
			}
			snap.templates[templateID] = tmpl
			snap.histories[templateID] = c.loadHistory(cardDir, tmpl)
		}
	}

	snap.fingerprint = computeFingerprint(c.dir)
	c.snap.Store(snap)
	c.log.Info("templates loaded", slog.Int("count", len(snap.templates)))
	return nil
}

// ReloadIfChanged перечитывает каталог, только если его отпечаток
// изменился. Возвращает true, когда снимок был заменён.
func (c *Catalog) ReloadIfChanged() (bool, error) {
	if computeFingerprint(c.dir) == c.snap.Load().fingerprint {
		return false, nil
	}
	c.log.Info("template directory changed, reloading")
	if err := c.Load(); err != nil {
		return false, err
	}
	return true, nil
}

// Resolve возвращает текущий снимок шаблона по идентификатору.
func (c *Catalog) Resolve(templateID string) (*models.Template, bool) {
	tmpl, ok := c.snap.Load().templates[templateID]
	return tmpl, ok
}

// VersionHistory возвращает историю версий шаблона: текущая версия
// первой, затем старые.
func (c *Catalog) VersionHistory(templateID string) []models.TemplateVersion {
	return c.snap.Load().histories[templateID]
}

// All возвращает все шаблоны снимка, отсортированные по идентификатору.
func (c *Catalog) All() []*models.Template {
	snap := c.snap.Load()
	result := make([]*models.Template, 0, len(snap.templates))
	for _, t := range snap.templates {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Fingerprint возвращает отпечаток, с которым был собран текущий снимок.
func (c *Catalog) Fingerprint() string {
	return c.snap.Load().fingerprint
}

// templateFile — структура card.yaml.
type templateFile struct {
	Name      string   `yaml:"name"`
	Issuer    string   `yaml:"issuer"`
	Network   string   `yaml:"network"`
	AnnualFee *int     `yaml:"annual_fee"`
	Currency  string   `yaml:"currency"`
	VersionID string   `yaml:"version_id"`
	Notes     string   `yaml:"notes"`
	Tags      []string `yaml:"tags"`
	Benefits  struct {
		Credits []struct {
			Name      string `yaml:"name"`
			Amount    int    `yaml:"amount"`
			Frequency string `yaml:"frequency"`
			ResetType string `yaml:"reset_type"`
		} `yaml:"credits"`
		SpendThresholds []struct {
			Name          string `yaml:"name"`
			SpendRequired int    `yaml:"spend_required"`
			Frequency     string `yaml:"frequency"`
			ResetType     string `yaml:"reset_type"`
			Description   string `yaml:"description"`
		} `yaml:"spend_thresholds"`
		BonusCategories []struct {
			Category   string `yaml:"category"`
			Multiplier string `yaml:"multiplier"`
			PortalOnly bool   `yaml:"portal_only"`
			Cap        *int   `yaml:"cap"`
		} `yaml:"bonus_categories"`
	} `yaml:"benefits"`
}

func loadTemplate(cardDir, templateID, issuerName, cardName string) (*models.Template, error) {
	raw, err := os.ReadFile(filepath.Join(cardDir, "card.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}

	tmpl := &models.Template{
		ID:        templateID,
		Name:      file.Name,
		Issuer:    file.Issuer,
		Network:   file.Network,
		VersionID: file.VersionID,
		AnnualFee: file.AnnualFee,
		Currency:  file.Currency,
		Notes:     file.Notes,
		Tags:      file.Tags,
	}
	if tmpl.Name == "" {
		tmpl.Name = cardName
	}
	if tmpl.Issuer == "" {
		tmpl.Issuer = issuerName
	}

	for _, cr := range file.Benefits.Credits {
		resetType := cr.ResetType
		if resetType == "" {
			resetType = models.ResetCalendar
		}
		tmpl.Credits = append(tmpl.Credits, models.TemplateCredit{
			Name: cr.Name, Amount: cr.Amount, Frequency: cr.Frequency, ResetType: resetType,
		})
	}
	for _, st := range file.Benefits.SpendThresholds {
		resetType := st.ResetType
		if resetType == "" {
			resetType = models.ResetCardiversary
		}
		tmpl.SpendThresholds = append(tmpl.SpendThresholds, models.TemplateSpendThreshold{
			Name: st.Name, SpendRequired: st.SpendRequired,
			Frequency: st.Frequency, ResetType: resetType, Description: st.Description,
		})
	}
	for _, bc := range file.Benefits.BonusCategories {
		tmpl.BonusCategories = append(tmpl.BonusCategories, models.TemplateBonusCategory{
			Category: bc.Category, Multiplier: bc.Multiplier, PortalOnly: bc.PortalOnly, Cap: bc.Cap,
		})
	}
	return tmpl, nil
}

// loadHistory собирает историю версий: текущая версия из card.yaml,
// затем старые из old/card_<version_id>.yaml. Файлы старых версий,
// которые не удалось разобрать, пропускаются.
func (c *Catalog) loadHistory(cardDir string, tmpl *models.Template) []models.TemplateVersion {
	var history []models.TemplateVersion
	if tmpl.VersionID != "" {
		history = append(history, models.TemplateVersion{
			VersionID: tmpl.VersionID,
			Name:      tmpl.Name,
			AnnualFee: tmpl.AnnualFee,
			IsCurrent: true,
		})
	}

	oldDir := filepath.Join(cardDir, "old")
	entries, err := os.ReadDir(oldDir)
	if err != nil {
		return history
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := oldVersionFileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		versionID := m[1]
		raw, err := os.ReadFile(filepath.Join(oldDir, entry.Name()))
		if err != nil {
			continue
		}
		var file templateFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			c.log.Warn("skipping old template version",
				slog.String("template_id", tmpl.ID), slog.String("version_id", versionID), sl.Err(err))
			continue
		}
		history = append(history, models.TemplateVersion{
			VersionID: versionID,
			Name:      file.Name,
			AnnualFee: file.AnnualFee,
		})
	}
	return history
}

// computeFingerprint строит отпечаток каталога из количества YAML-файлов
// и самого свежего mtime. Скрытые директории не учитываются.
func computeFingerprint(dir string) string {
	var maxMtime int64
	count := 0
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		name := strings.ToLower(d.Name())
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if mtime := info.ModTime().UnixNano(); mtime > maxMtime {
			maxMtime = mtime
		}
		count++
		return nil
	})
	return fmt.Sprintf("%d:%d", count, maxMtime)
}
