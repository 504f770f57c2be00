package response

// SuccessResponse представляет успешный ответ API
type SuccessResponse struct {
	Message string `json:"message" example:"Операция успешно выполнена"`
}

// ErrorResponse представляет ответ с ошибкой API
type ErrorResponse struct {
	// Код ошибки для программной обработки
	// example: VALIDATION_ERROR
	Code string `json:"code"`

	// Человекочитаемое сообщение об ошибке
	// example: Очередь не найдена
	Message string `json:"message"`

	// Дополнительные детали об ошибке (опционально)
	// example: недопустимый переход статуса: SERVED -> WAITING
	Details string `json:"details,omitempty"`
}
