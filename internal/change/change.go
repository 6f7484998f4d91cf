package change

import "github.com/shaiso/socialwatch/internal/domain"

// Пороги классификации удалений по умолчанию.
const (
	DefaultAbsoluteThreshold = 5
	DefaultRatioThreshold    = 0.5
)

// DeletionClass — классификация всплеска удалений.
//
// Классификация информационная: она попадает в логи и текст уведомления,
// но никогда не подавляет саму дельту счётчиков.
type DeletionClass string

const (
	// DeletionNone — удалений нет.
	DeletionNone DeletionClass = "none"

	// DeletionUnknown — счётчик уменьшился, но конкретные пропавшие id не найдены.
	DeletionUnknown DeletionClass = "unknown"

	// DeletionRealMissing — небольшое удаление, похоже на настоящее.
	DeletionRealMissing DeletionClass = "real_missing"

	// DeletionSyncAnomaly — слишком большой всплеск, похоже на сбой синхронизации.
	DeletionSyncAnomaly DeletionClass = "sync_anomaly"
)

// Thresholds — пороги для классификации удалений.
type Thresholds struct {
	// Absolute — удаление не меньше этого числа считается аномалией.
	Absolute int

	// Ratio — доля удалённого от предыдущего счётчика, начиная с которой аномалия.
	Ratio float64
}

// DefaultThresholds возвращает пороги по умолчанию (5 и 0.5).
func DefaultThresholds() Thresholds {
	return Thresholds{Absolute: DefaultAbsoluteThreshold, Ratio: DefaultRatioThreshold}
}

func (t Thresholds) withDefaults() Thresholds {
	if t.Absolute <= 0 {
		t.Absolute = DefaultAbsoluteThreshold
	}
	if t.Ratio <= 0 {
		t.Ratio = DefaultRatioThreshold
	}
	return t
}

// PlatformDelta — изменения на одной платформе.
type PlatformDelta struct {
	Previous int `json:"previous"`
	Current  int `json:"current"`

	// Added — сколько единиц контента добавилось (diff > 0).
	Added int `json:"added"`

	// Deleted — сколько единиц пропало (diff < 0).
	Deleted int `json:"deleted"`

	// Class — классификация удаления.
	Class DeletionClass `json:"class"`

	// MissingIDs — короткий список пропавших id (если известен).
	MissingIDs []string `json:"missing_ids,omitempty"`
}

// Changed возвращает true, если на платформе есть добавления или удаления.
func (d PlatformDelta) Changed() bool {
	return d.Added > 0 || d.Deleted > 0
}

// Descriptor — что изменилось у клиента с прошлого run.
// Не сохраняется: сразу потребляется Payload Builder'ом.
type Descriptor struct {
	Instagram PlatformDelta `json:"instagram"`
	TikTok    PlatformDelta `json:"tiktok"`

	// HasChanges — есть изменения хотя бы на одной платформе.
	HasChanges bool `json:"has_changes"`
}

// Platform возвращает дельту для платформы.
func (d *Descriptor) Platform(p domain.Platform) PlatformDelta {
	if p == domain.PlatformTikTok {
		return d.TikTok
	}
	return d.Instagram
}

// TotalAdded возвращает сумму добавлений по всем платформам.
func (d *Descriptor) TotalAdded() int {
	return d.Instagram.Added + d.TikTok.Added
}

// HasAnomaly возвращает true, если хотя бы одна платформа классифицирована как sync_anomaly.
func (d *Descriptor) HasAnomaly() bool {
	return d.Instagram.Class == DeletionSyncAnomaly || d.TikTok.Class == DeletionSyncAnomaly
}

// Compute сравнивает предыдущие и текущие счётчики.
//
// missing — короткие списки пропавших id по платформам; используются
// только для классификации удалений.
func Compute(prev, cur domain.Counts, missing map[domain.Platform][]string, th Thresholds) Descriptor {
	th = th.withDefaults()

	d := Descriptor{
		Instagram: platformDelta(prev.Instagram, cur.Instagram, missing[domain.PlatformInstagram], th),
		TikTok:    platformDelta(prev.TikTok, cur.TikTok, missing[domain.PlatformTikTok], th),
	}
	d.HasChanges = d.Instagram.Changed() || d.TikTok.Changed()
	return d
}

func platformDelta(prev, cur int, missingIDs []string, th Thresholds) PlatformDelta {
	pd := PlatformDelta{Previous: prev, Current: cur, Class: DeletionNone}

	diff := cur - prev
	switch {
	case diff > 0:
		pd.Added = diff
	case diff < 0:
		pd.Deleted = -diff
		pd.MissingIDs = missingIDs
		pd.Class = Classify(pd.Deleted, prev, missingIDs, th)
	}
	return pd
}

// Classify классифицирует удаление deleted единиц при предыдущем счётчике previous.
//
// Пустой список пропавших id даёт unknown. Иначе sync_anomaly, если
// deleted ≥ Absolute или deleted/previous ≥ Ratio (ratio = 1 при previous == 0),
// и real_missing в остальных случаях.
func Classify(deleted, previous int, missingIDs []string, th Thresholds) DeletionClass {
	if deleted <= 0 {
		return DeletionNone
	}
	if len(missingIDs) == 0 {
		return DeletionUnknown
	}

	th = th.withDefaults()

	ratio := 1.0
	if previous > 0 {
		ratio = float64(deleted) / float64(previous)
	}

	if deleted >= th.Absolute || ratio >= th.Ratio {
		return DeletionSyncAnomaly
	}
	return DeletionRealMissing
}
