package models

import (
	"time"

	"gorm.io/gorm"
)

// PatientStatus — статус пациента в очереди.
type PatientStatus string

const (
	StatusWaiting   PatientStatus = "WAITING"
	StatusNotified  PatientStatus = "NOTIFIED"
	StatusServing   PatientStatus = "SERVING"
	StatusServed    PatientStatus = "SERVED"
	StatusCancelled PatientStatus = "CANCELLED"
)

// AllStatuses перечисляет все возможные статусы (для валидации и тестов).
var AllStatuses = []PatientStatus{
	StatusWaiting,
	StatusNotified,
	StatusServing,
	StatusServed,
	StatusCancelled,
}

// Valid проверяет, что строка является известным статусом.
func (s PatientStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusNotified, StatusServing, StatusServed, StatusCancelled:
		return true
	}
	return false
}

// Terminal — из терминального статуса переходы невозможны.
func (s PatientStatus) Terminal() bool {
	return s == StatusServed || s == StatusCancelled
}

// Active — статусы, при которых позиция в очереди имеет смысл.
func (s PatientStatus) Active() bool {
	return s == StatusWaiting || s == StatusNotified || s == StatusServing
}

type Queue struct {
	gorm.Model
	Name        string `gorm:"not null"` // Название очереди (например, "Терапевт, каб. 12")
	Description string // Описание для пациентов
	Department  string // Название отделения
	JoinCode    string `gorm:"uniqueIndex;not null"` // Код для записи по QR (генерация изображения — внешний сервис)
}

type Patient struct {
	gorm.Model
	Name       string `gorm:"not null"`
	Phone      string
	Email      string
	QueueID    uint          `gorm:"index;not null"`
	Status     PatientStatus `gorm:"index;not null;default:WAITING"`
	Position   int           `gorm:"index"`              // Позиция в очереди, монотонно растёт и не переиспользуется; имеет смысл только для активных статусов
	Version    uint          `gorm:"not null;default:0"` // Счётчик версий для CAS-обновления статуса
	JoinedAt   time.Time     `gorm:"not null"`
	NotifiedAt *time.Time // Время перехода в NOTIFIED, nil до перехода
	ServedAt   *time.Time // Время перехода в SERVED, nil до перехода
}

type PatientDevice struct {
	gorm.Model
	PatientID   uint   `gorm:"index;not null"`
	DeviceToken string `gorm:"not null"` // FCM-токен устройства
}
