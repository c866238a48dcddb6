package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIResponseCode int

const (
	APIResponseCodeOK           APIResponseCode = 0
	APIResponseCodeBadRequest   APIResponseCode = 40000
	APIResponseCodeUnauthorized APIResponseCode = 40100
	APIResponseCodeForbidden    APIResponseCode = 40300
	APIResponseCodeNotFound     APIResponseCode = 40400
	APIResponseCodeError        APIResponseCode = 50000
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:           "ok",
	APIResponseCodeBadRequest:   "bad request",
	APIResponseCodeUnauthorized: "unauthorized",
	APIResponseCodeForbidden:    "forbidden",
	APIResponseCodeNotFound:     "not found",
	APIResponseCodeError:        "unexpected error",
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with the code's canonical message and
// optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

// BadRequest writes a 400 with the given message.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, &APIResponse[any]{Code: APIResponseCodeBadRequest, Message: msg})
}

// Unauthorized writes a 401 with the given message.
func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, &APIResponse[any]{Code: APIResponseCodeUnauthorized, Message: msg})
}

// Forbidden writes a 403 with the given message.
func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, &APIResponse[any]{Code: APIResponseCodeForbidden, Message: msg})
}

// NotFound writes a 404 with the given message.
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, &APIResponse[any]{Code: APIResponseCodeNotFound, Message: msg})
}

// InternalError writes a 500 with the canonical message; the underlying
// error goes to the log, never to the client.
func InternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, &APIResponse[any]{Code: APIResponseCodeError, Message: codeToMsg[APIResponseCodeError]})
}
