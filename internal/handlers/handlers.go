package handlers

import (
	"errors"
	"net/http"
	"time"

	"hospital_queue/internal/models"
	"hospital_queue/internal/notify"
	"hospital_queue/internal/response"
	"hospital_queue/internal/service"
	"hospital_queue/internal/statemachine"

	"github.com/gin-gonic/gin"
)

// Глобальные зависимости хендлеров, задаются из main.
var (
	Svc        *service.QueueService
	Dispatcher *notify.Dispatcher
)

// Init подключает координатор и диспетчер к HTTP-слою.
func Init(svc *service.QueueService, dispatcher *notify.Dispatcher) {
	Svc = svc
	Dispatcher = dispatcher
}

// PatientDTO — представление пациента в API. Позиция отдаётся только для
// активных статусов.
type PatientDTO struct {
	ID         uint                 `json:"id"`
	Name       string               `json:"name"`
	Phone      string               `json:"phone,omitempty"`
	Email      string               `json:"email,omitempty"`
	QueueID    uint                 `json:"queue_id"`
	Status     models.PatientStatus `json:"status"`
	Position   *int                 `json:"position,omitempty"`
	JoinedAt   time.Time            `json:"joined_at"`
	NotifiedAt *time.Time           `json:"notified_at,omitempty"`
	ServedAt   *time.Time           `json:"served_at,omitempty"`
}

func toPatientDTO(p *models.Patient) PatientDTO {
	dto := PatientDTO{
		ID:         p.ID,
		Name:       p.Name,
		Phone:      p.Phone,
		Email:      p.Email,
		QueueID:    p.QueueID,
		Status:     p.Status,
		JoinedAt:   p.JoinedAt,
		NotifiedAt: p.NotifiedAt,
		ServedAt:   p.ServedAt,
	}
	if p.Status.Active() {
		pos := p.Position
		dto.Position = &pos
	}
	return dto
}

func toPatientDTOs(patients []models.Patient) []PatientDTO {
	dtos := make([]PatientDTO, 0, len(patients))
	for i := range patients {
		dtos = append(dtos, toPatientDTO(&patients[i]))
	}
	return dtos
}

// writeServiceError переводит типизированные ошибки ядра в HTTP-ответы.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrQueueNotFound):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "QUEUE_NOT_FOUND",
			Message: "Очередь не найдена",
		})
	case errors.Is(err, service.ErrPatientNotFound):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "PATIENT_NOT_FOUND",
			Message: "Пациент не найден",
		})
	case errors.Is(err, statemachine.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_TRANSITION",
			Message: "Запрошенный переход статуса недопустим",
			Details: err.Error(),
		})
	case errors.Is(err, service.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_POSITION",
			Message: "Позиция должна быть не меньше 1",
		})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "CONFLICT",
			Message: "Не удалось применить изменение из-за конкурентного обновления",
		})
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Внутренняя ошибка сервера",
			Details: err.Error(),
		})
	}
}
