package models

// Template представляет снимок определения карточного продукта,
// загруженный из каталога шаблонов. Для движка снимок доступен
// только на чтение.
type Template struct {
	ID        string // Например "chase/sapphire_preferred"
	Name      string
	Issuer    string
	Network   string
	VersionID string // Пустая строка — шаблон без версии, синхронизация его пропускает
	AnnualFee *int
	Currency  string
	Notes     string
	Tags      []string

	Credits         []TemplateCredit
	SpendThresholds []TemplateSpendThreshold
	BonusCategories []TemplateBonusCategory
}

// TemplateCredit — повторяющийся кредит из шаблона.
type TemplateCredit struct {
	Name      string
	Amount    int
	Frequency string
	ResetType string
}

// TemplateSpendThreshold — порог трат из шаблона.
type TemplateSpendThreshold struct {
	Name          string
	SpendRequired int
	Frequency     string
	ResetType     string
	Description   string
}

// TemplateBonusCategory — бонусная категория из шаблона.
type TemplateBonusCategory struct {
	Category   string
	Multiplier string
	PortalOnly bool
	Cap        *int
}

// TemplateVersion — элемент истории версий шаблона,
// упорядоченной от текущей версии к самым старым.
type TemplateVersion struct {
	VersionID string
	Name      string
	AnnualFee *int
	IsCurrent bool
}
