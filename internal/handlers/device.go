package handlers

import (
	"net/http"

	"hospital_queue/internal/models"
	"hospital_queue/internal/response"
	"hospital_queue/internal/storage"

	"github.com/gin-gonic/gin"
)

type RegisterDeviceRequest struct {
	PatientID   uint   `json:"patient_id" binding:"required"`
	DeviceToken string `json:"device_token" binding:"required"`
}

type DeviceDTO struct {
	ID          uint   `json:"id"`
	PatientID   uint   `json:"patient_id"`
	DeviceToken string `json:"device_token"`
}

// RegisterDeviceHandler обрабатывает регистрацию устройства пациента
// @Summary		Регистрация устройства
// @Description	Привязывает FCM-токен устройства к пациенту для push-уведомлений. Повторная регистрация того же токена идемпотентна
// @Tags			devices
// @Accept			json
// @Produce		json
// @Param			device	body		RegisterDeviceRequest	true	"Данные устройства"
// @Success		201		{object}	DeviceDTO
// @Failure		400		{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		404		{object}	response.ErrorResponse	"Пациент не найден (PATIENT_NOT_FOUND)"
// @Failure		500		{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/devices [post]
func RegisterDeviceHandler(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	var patient models.Patient
	if err := storage.DB.First(&patient, req.PatientID).Error; err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "PATIENT_NOT_FOUND",
			Message: "Пациент не найден",
		})
		return
	}

	// Идемпотентность: уже зарегистрированный токен возвращается как есть.
	var device models.PatientDevice
	err := storage.DB.
		Where("patient_id = ? AND device_token = ?", req.PatientID, req.DeviceToken).
		First(&device).Error
	if err != nil {
		device = models.PatientDevice{
			PatientID:   req.PatientID,
			DeviceToken: req.DeviceToken,
		}
		if err := storage.DB.Create(&device).Error; err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorResponse{
				Code:    "DB_ERROR",
				Message: "Ошибка регистрации устройства",
				Details: err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusCreated, DeviceDTO{
		ID:          device.ID,
		PatientID:   device.PatientID,
		DeviceToken: device.DeviceToken,
	})
}

// ListPatientDevicesHandler обрабатывает запрос устройств пациента
// @Summary		Устройства пациента
// @Tags			devices
// @Produce		json
// @Param			id	path		string	true	"ID пациента"
// @Success		200	{array}		DeviceDTO
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/patients/{id}/devices [get]
func ListPatientDevicesHandler(c *gin.Context) {
	patientID, ok := parseID(c, "INVALID_PATIENT_ID", "Неверный идентификатор пациента")
	if !ok {
		return
	}

	var devices []models.PatientDevice
	if err := storage.DB.Where("patient_id = ?", patientID).Find(&devices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки устройств",
			Details: err.Error(),
		})
		return
	}

	dtos := make([]DeviceDTO, 0, len(devices))
	for _, d := range devices {
		dtos = append(dtos, DeviceDTO{ID: d.ID, PatientID: d.PatientID, DeviceToken: d.DeviceToken})
	}
	c.JSON(http.StatusOK, dtos)
}

// DeleteDeviceHandler обрабатывает удаление устройства
// @Summary		Удаление устройства
// @Tags			devices
// @Produce		json
// @Param			id	path		string	true	"ID устройства"
// @Success		200	{object}	response.SuccessResponse
// @Failure		404	{object}	response.ErrorResponse	"Устройство не найдено (DEVICE_NOT_FOUND)"
// @Router			/api/devices/{id} [delete]
func DeleteDeviceHandler(c *gin.Context) {
	deviceID, ok := parseID(c, "INVALID_DEVICE_ID", "Неверный идентификатор устройства")
	if !ok {
		return
	}

	var device models.PatientDevice
	if err := storage.DB.First(&device, deviceID).Error; err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "DEVICE_NOT_FOUND",
			Message: "Устройство не найдено",
		})
		return
	}

	if err := storage.DB.Delete(&device).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка удаления устройства",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Устройство удалено"})
}

// DeleteAllPatientDevicesHandler обрабатывает отвязку всех устройств пациента
// @Summary		Удаление всех устройств пациента
// @Tags			devices
// @Produce		json
// @Param			id	path		string	true	"ID пациента"
// @Success		200	{object}	response.SuccessResponse
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/patients/{id}/devices [delete]
func DeleteAllPatientDevicesHandler(c *gin.Context) {
	patientID, ok := parseID(c, "INVALID_PATIENT_ID", "Неверный идентификатор пациента")
	if !ok {
		return
	}

	if err := storage.DB.Where("patient_id = ?", patientID).Delete(&models.PatientDevice{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка удаления устройств",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Устройства пациента удалены"})
}
