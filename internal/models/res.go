package models

type ApiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Page    int         `json:"page,omitempty"`
	Limit   int         `json:"limit,omitempty"`
	Total   int64       `json:"total,omitempty"`
}

func SuccessResponse(data interface{}, message string) ApiResponse {
	return ApiResponse{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func ErrorResponse(err string) ApiResponse {
	return ApiResponse{
		Success: false,
		Error:   err,
	}
}

func PaginatedResponse(data interface{}, page, limit int, total int64) ApiResponse {
	return ApiResponse{
		Success: true,
		Data:    data,
		Page:    page,
		Limit:   limit,
		Total:   total,
	}
}

// WebhookAck is returned to payment gateways. Any 2xx with this body tells
// the gateway not to redeliver.
type WebhookAck struct {
	Status  string      `json:"status"`
	Outcome string      `json:"outcome"`
	Message string      `json:"message,omitempty"`
	Data    WebhookData `json:"data"`
}

type WebhookData struct {
	Transaction *Transaction `json:"transaction"`
}
