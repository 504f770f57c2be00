package store

import (
	"errors"

	"hospital_queue/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrNotFound — запись не найдена в хранилище.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конкурентное обновление: версия записи изменилась между чтением и записью.
	ErrConflict = errors.New("конфликт версий при сохранении")
)

// Repository — контракт хранилища для ядра очереди. Логики переходов здесь нет,
// только чтение и запись. Консистентность гарантируется в пределах одной очереди.
type Repository interface {
	FindQueue(id uint) (*models.Queue, error)
	FindQueueByJoinCode(code string) (*models.Queue, error)
	FindPatient(id uint) (*models.Patient, error)
	// Save сохраняет пациента (upsert). Для существующих записей выполняется
	// CAS-проверка по полю Version; при проигранной гонке возвращает ErrConflict.
	Save(p *models.Patient) error
	// ListByQueue возвращает всех пациентов очереди, упорядоченных по позиции.
	ListByQueue(queueID uint) ([]models.Patient, error)
	// ListByQueueAndStatus возвращает пациентов очереди с указанными статусами,
	// упорядоченных по позиции.
	ListByQueueAndStatus(queueID uint, statuses ...models.PatientStatus) ([]models.Patient, error)
	// MaxPosition возвращает максимальную когда-либо выданную позицию в очереди
	// (включая терминальные записи), либо 0 для пустой очереди.
	MaxPosition(queueID uint) (int, error)
	// DeviceTokens возвращает FCM-токены всех устройств пациента.
	DeviceTokens(patientID uint) ([]string, error)
}

// DBRepository — реализация Repository поверх gorm/postgres.
type DBRepository struct {
	DB *gorm.DB
}

func NewRepository(db *gorm.DB) *DBRepository {
	return &DBRepository{DB: db}
}

func (r *DBRepository) FindQueue(id uint) (*models.Queue, error) {
	var queue models.Queue
	if err := r.DB.First(&queue, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &queue, nil
}

func (r *DBRepository) FindQueueByJoinCode(code string) (*models.Queue, error) {
	var queue models.Queue
	if err := r.DB.Where("join_code = ?", code).First(&queue).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &queue, nil
}

func (r *DBRepository) FindPatient(id uint) (*models.Patient, error) {
	var patient models.Patient
	if err := r.DB.First(&patient, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &patient, nil
}

func (r *DBRepository) Save(p *models.Patient) error {
	if p.ID == 0 {
		return r.DB.Create(p).Error
	}

	// Оптимистическая блокировка: обновляем только если версия не изменилась.
	oldVersion := p.Version
	p.Version++
	res := r.DB.Model(&models.Patient{}).
		Where("id = ? AND version = ?", p.ID, oldVersion).
		Updates(map[string]interface{}{
			"status":      p.Status,
			"position":    p.Position,
			"version":     p.Version,
			"notified_at": p.NotifiedAt,
			"served_at":   p.ServedAt,
		})
	if res.Error != nil {
		p.Version = oldVersion
		return res.Error
	}
	if res.RowsAffected == 0 {
		p.Version = oldVersion
		return ErrConflict
	}
	return nil
}

func (r *DBRepository) ListByQueue(queueID uint) ([]models.Patient, error) {
	var patients []models.Patient
	err := r.DB.
		Where("queue_id = ?", queueID).
		Order("position ASC, joined_at ASC, id ASC").
		Find(&patients).Error
	return patients, err
}

func (r *DBRepository) ListByQueueAndStatus(queueID uint, statuses ...models.PatientStatus) ([]models.Patient, error) {
	var patients []models.Patient
	err := r.DB.
		Where("queue_id = ? AND status IN ?", queueID, statuses).
		Order("position ASC, joined_at ASC, id ASC").
		Find(&patients).Error
	return patients, err
}

func (r *DBRepository) MaxPosition(queueID uint) (int, error) {
	var maxPosition int
	row := r.DB.Model(&models.Patient{}).
		Where("queue_id = ?", queueID).
		Select("COALESCE(MAX(position),0)").Row()
	if err := row.Scan(&maxPosition); err != nil {
		return 0, err
	}
	return maxPosition, nil
}

func (r *DBRepository) DeviceTokens(patientID uint) ([]string, error) {
	var tokens []string
	err := r.DB.Model(&models.PatientDevice{}).
		Where("patient_id = ?", patientID).
		Pluck("device_token", &tokens).Error
	return tokens, err
}
