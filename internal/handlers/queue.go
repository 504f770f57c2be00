package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"hospital_queue/internal/models"
	"hospital_queue/internal/position"
	"hospital_queue/internal/response"
	"hospital_queue/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ctx = context.Background()

type QueueDTO struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Department  string `json:"department,omitempty"`
	JoinCode    string `json:"join_code"`
}

func toQueueDTO(q *models.Queue) QueueDTO {
	return QueueDTO{
		ID:          q.ID,
		Name:        q.Name,
		Description: q.Description,
		Department:  q.Department,
		JoinCode:    q.JoinCode,
	}
}

type CreateQueueRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Department  string `json:"department"`
}

// CreateQueueHandler обрабатывает создание очереди
// @Summary		Создание очереди
// @Description	Создаёт очередь и генерирует код записи для QR
// @Tags			queues
// @Accept			json
// @Produce		json
// @Param			queue	body		CreateQueueRequest	true	"Данные очереди"
// @Success		201		{object}	QueueDTO
// @Failure		400		{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		500		{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queues [post]
func CreateQueueHandler(c *gin.Context) {
	var req CreateQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	queue := models.Queue{
		Name:        req.Name,
		Description: req.Description,
		Department:  req.Department,
		JoinCode:    uuid.NewString(),
	}
	if err := storage.DB.Create(&queue).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка создания очереди",
			Details: err.Error(),
		})
		return
	}

	Dispatcher.BroadcastQueueUpdate(queue.ID)
	c.JSON(http.StatusCreated, toQueueDTO(&queue))
}

// ListQueuesHandler обрабатывает запрос списка очередей
// @Summary		Список очередей
// @Tags			queues
// @Produce		json
// @Success		200	{array}		QueueDTO
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queues [get]
func ListQueuesHandler(c *gin.Context) {
	var queues []models.Queue
	if err := storage.DB.Order("id ASC").Find(&queues).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки очередей",
			Details: err.Error(),
		})
		return
	}

	dtos := make([]QueueDTO, 0, len(queues))
	for i := range queues {
		dtos = append(dtos, toQueueDTO(&queues[i]))
	}
	c.JSON(http.StatusOK, dtos)
}

// DeleteQueueHandler обрабатывает удаление очереди
// @Summary		Удаление очереди
// @Description	Удаляет очередь вместе со всеми её пациентами и их устройствами
// @Tags			queues
// @Produce		json
// @Param			id	path		string	true	"ID очереди"
// @Success		200	{object}	response.SuccessResponse
// @Failure		404	{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queues/{id} [delete]
func DeleteQueueHandler(c *gin.Context) {
	queueID, ok := parseID(c, "INVALID_QUEUE_ID", "Неверный идентификатор очереди")
	if !ok {
		return
	}

	var queue models.Queue
	if err := storage.DB.First(&queue, queueID).Error; err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "QUEUE_NOT_FOUND",
			Message: "Очередь не найдена",
		})
		return
	}

	// Каскадное удаление: устройства пациентов, пациенты, затем сама очередь.
	err := storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("patient_id IN (?)",
			tx.Model(&models.Patient{}).Select("id").Where("queue_id = ?", queueID),
		).Delete(&models.PatientDevice{}).Error; err != nil {
			return err
		}
		if err := tx.Where("queue_id = ?", queueID).Delete(&models.Patient{}).Error; err != nil {
			return err
		}
		return tx.Delete(&queue).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка удаления очереди",
			Details: err.Error(),
		})
		return
	}

	Dispatcher.BroadcastQueueUpdate(queue.ID)
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Очередь удалена"})
}

// QueueDetailsResponse — полная проекция очереди: текущий пациент и списки по статусам.
// Собирается из независимых выборок по id, без встраивания сущностей друг в друга.
type QueueDetailsResponse struct {
	QueueDTO
	CurrentPatient    *PatientDTO  `json:"current_patient,omitempty"`
	WaitingPatients   []PatientDTO `json:"waiting_patients"`
	ServedPatients    []PatientDTO `json:"served_patients"`
	CancelledPatients []PatientDTO `json:"cancelled_patients"`
}

const detailsCacheTTL = 10 * time.Second

// GetQueueDetailsHandler обрабатывает запрос состояния очереди
// @Summary		Состояние очереди
// @Description	Возвращает очередь, текущего обслуживаемого пациента и списки ожидающих/обслуженных/отменённых. Результат кэшируется в Redis на 10 секунд
// @Tags			queues
// @Produce		json
// @Param			id	path		string	true	"ID очереди"
// @Success		200	{object}	QueueDetailsResponse
// @Failure		404	{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queues/{id}/details [get]
func GetQueueDetailsHandler(c *gin.Context) {
	queueID, ok := parseID(c, "INVALID_QUEUE_ID", "Неверный идентификатор очереди")
	if !ok {
		return
	}

	// Проверка кэша
	cacheKey := "queue_details_" + c.Param("id")
	if storage.RedisClient != nil {
		cached, err := storage.RedisClient.Get(ctx, cacheKey).Result()
		if err == nil && cached != "" {
			var details QueueDetailsResponse
			if err := json.Unmarshal([]byte(cached), &details); err == nil {
				c.JSON(http.StatusOK, details)
				return
			}
		}
	}

	var queue models.Queue
	if err := storage.DB.First(&queue, queueID).Error; err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "QUEUE_NOT_FOUND",
			Message: "Очередь не найдена",
		})
		return
	}

	var patients []models.Patient
	if err := storage.DB.
		Where("queue_id = ?", queueID).
		Order("position ASC, joined_at ASC, id ASC").
		Find(&patients).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки пациентов очереди",
			Details: err.Error(),
		})
		return
	}

	details := QueueDetailsResponse{
		QueueDTO:          toQueueDTO(&queue),
		WaitingPatients:   []PatientDTO{},
		ServedPatients:    []PatientDTO{},
		CancelledPatients: []PatientDTO{},
	}

	position.SortPatients(patients)
	for i := range patients {
		p := &patients[i]
		dto := toPatientDTO(p)
		switch p.Status {
		case models.StatusServing:
			details.CurrentPatient = &dto
		case models.StatusWaiting, models.StatusNotified:
			details.WaitingPatients = append(details.WaitingPatients, dto)
		case models.StatusServed:
			details.ServedPatients = append(details.ServedPatients, dto)
		case models.StatusCancelled:
			details.CancelledPatients = append(details.CancelledPatients, dto)
		}
	}

	// Кэширование результата
	if storage.RedisClient != nil {
		if data, err := json.Marshal(details); err == nil {
			storage.RedisClient.Set(ctx, cacheKey, string(data), detailsCacheTTL)
		}
	}

	c.JSON(http.StatusOK, details)
}

// CallNextHandler обрабатывает вызов следующего пациента
// @Summary		Вызов следующего пациента
// @Description	Переводит следующего WAITING-пациента в SERVING. Если кто-то уже обслуживается или очередь пуста, ничего не меняет
// @Tags			queues
// @Produce		json
// @Param			id	path		string	true	"ID очереди"
// @Success		200	{object}	PatientDTO	"Вызванный пациент, либо пустой ответ, если вызывать некого"
// @Failure		404	{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queues/{id}/call-next [post]
func CallNextHandler(c *gin.Context) {
	queueID, ok := parseID(c, "INVALID_QUEUE_ID", "Неверный идентификатор очереди")
	if !ok {
		return
	}

	patient, err := Svc.CallNext(queueID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if patient == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Вызывать некого: очередь пуста или пациент уже обслуживается"})
		return
	}

	c.JSON(http.StatusOK, toPatientDTO(patient))
}
