package handlers

import (
	"net/http"
	"strconv"

	"hospital_queue/internal/models"
	"hospital_queue/internal/response"
	"hospital_queue/internal/service"

	"github.com/gin-gonic/gin"
)

type RegisterPatientRequest struct {
	QueueID  uint   `json:"queue_id"`
	JoinCode string `json:"join_code"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

// RegisterPatientHandler обрабатывает запись пациента в очередь
// @Summary		Запись пациента в очередь
// @Description	Создаёт пациента со статусом WAITING и следующей позицией. Очередь указывается по id или по коду записи (QR)
// @Tags			patients
// @Accept			json
// @Produce		json
// @Param			patient	body		RegisterPatientRequest	true	"Данные пациента"
// @Success		201		{object}	PatientDTO	"Пациент записан в очередь"
// @Failure		400		{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		404		{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Failure		500		{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/patients/register [post]
func RegisterPatientHandler(c *gin.Context) {
	var req RegisterPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	patient, err := Svc.RegisterPatient(service.RegisterPatientInput{
		QueueID:  req.QueueID,
		JoinCode: req.JoinCode,
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toPatientDTO(patient))
}

// GetPatientHandler обрабатывает запрос пациента по id
// @Summary		Получение пациента
// @Tags			patients
// @Produce		json
// @Param			id	path		string	true	"ID пациента"
// @Success		200	{object}	PatientDTO
// @Failure		400	{object}	response.ErrorResponse	"Неверный идентификатор (INVALID_PATIENT_ID)"
// @Failure		404	{object}	response.ErrorResponse	"Пациент не найден (PATIENT_NOT_FOUND)"
// @Router			/api/patients/{id} [get]
func GetPatientHandler(c *gin.Context) {
	patientID, ok := parseID(c, "INVALID_PATIENT_ID", "Неверный идентификатор пациента")
	if !ok {
		return
	}

	patient, err := Svc.GetPatient(patientID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPatientDTO(patient))
}

type UpdateStatusRequest struct {
	Status models.PatientStatus `json:"status" binding:"required"`
}

// UpdatePatientStatusHandler обрабатывает смену статуса пациента
// @Summary		Смена статуса пациента
// @Description	Применяет переход машины состояний. При переходе в SERVING другой обслуживаемый пациент понижается до WAITING, а следующие двое уведомляются
// @Tags			patients
// @Accept			json
// @Produce		json
// @Param			id		path		string					true	"ID пациента"
// @Param			status	body		UpdateStatusRequest		true	"Новый статус"
// @Success		200		{object}	PatientDTO
// @Failure		400		{object}	response.ErrorResponse	"Ошибка валидации или недопустимый переход (VALIDATION_ERROR, INVALID_TRANSITION)"
// @Failure		404		{object}	response.ErrorResponse	"Пациент не найден (PATIENT_NOT_FOUND)"
// @Failure		409		{object}	response.ErrorResponse	"Конфликт конкурентного обновления (CONFLICT)"
// @Router			/api/patients/{id}/status [put]
func UpdatePatientStatusHandler(c *gin.Context) {
	patientID, ok := parseID(c, "INVALID_PATIENT_ID", "Неверный идентификатор пациента")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	patient, err := Svc.UpdateStatus(patientID, req.Status)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPatientDTO(patient))
}

type ReassignPositionRequest struct {
	Position int `json:"position" binding:"required"`
}

// ReassignPositionHandler обрабатывает переназначение позиции пациента
// @Summary		Переназначение позиции
// @Description	Административно выставляет пациенту произвольную позицию без перенумерации соседей
// @Tags			patients
// @Accept			json
// @Produce		json
// @Param			id			path		string						true	"ID пациента"
// @Param			position	body		ReassignPositionRequest		true	"Новая позиция"
// @Success		200			{object}	PatientDTO
// @Failure		400			{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR, INVALID_POSITION)"
// @Failure		404			{object}	response.ErrorResponse	"Пациент не найден (PATIENT_NOT_FOUND)"
// @Router			/api/patients/{id}/position [put]
func ReassignPositionHandler(c *gin.Context) {
	patientID, ok := parseID(c, "INVALID_PATIENT_ID", "Неверный идентификатор пациента")
	if !ok {
		return
	}

	var req ReassignPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	patient, err := Svc.ReassignPosition(patientID, req.Position)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPatientDTO(patient))
}

func parseID(c *gin.Context, code, message string) (uint, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    code,
			Message: message,
		})
		return 0, false
	}
	return uint(id), true
}
