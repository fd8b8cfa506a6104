package response

import "github.com/gin-gonic/gin"

const (
	CodeOK               = 0
	CodeBadRequest       = 40000
	CodeFileTooLarge     = 40001
	CodeFileType         = 40002
	CodeDocumentNotFound = 40401
	CodeSessionNotFound  = 40402
	CodeBatchNotFound    = 40403
	CodeInternalServer   = 50000
	CodeUpstreamFailure  = 50200
)

type APIResponse struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// ErrorRetryable marks upstream failures the client may safely retry.
func ErrorRetryable(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:      code,
		Message:   message,
		Retryable: true,
	})
}
